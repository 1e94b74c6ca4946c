package router

import "net/http"

func writeEnvelope(res http.ResponseWriter, body []byte) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(http.StatusOK)
	_, _ = res.Write(body)
}

func GetUsers(res http.ResponseWriter, req *http.Request) {
	writeEnvelope(res, []byte(`[]`))
}

func PostUsers(res http.ResponseWriter, req *http.Request) {
	if req.Body == nil {
		http.Error(res, "empty body", http.StatusBadRequest) // want `response written outside writeEnvelope`
		return
	}
	res.WriteHeader(http.StatusCreated)        // want `response written outside writeEnvelope`
	_, _ = res.Write([]byte(`{"id":"x"}`)) // want `response written outside writeEnvelope`
}

func notFound() http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		res.WriteHeader(http.StatusNotFound) // want `response written outside writeEnvelope`
	}
}
