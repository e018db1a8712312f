package tls

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ocspHTTPClient = &http.Client{Timeout: 10 * time.Second}

// fetchOCSPResponse POSTs an OCSP request to responderURL per RFC 6960
// §4.1 and returns the raw DER response body.
func fetchOCSPResponse(responderURL string, reqBytes []byte) ([]byte, error) {
	resp, err := ocspHTTPClient.Post(responderURL, "application/ocsp-request", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tls: OCSP responder returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}
