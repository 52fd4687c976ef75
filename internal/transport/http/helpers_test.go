package httptransport

import "net/http/httptest"

type testResponse struct {
	rr *httptest.ResponseRecorder
}
