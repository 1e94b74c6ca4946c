package other

import "net/http"

func Handle(res http.ResponseWriter, req *http.Request) {
	http.Error(res, "fine here", http.StatusTeapot)
	res.WriteHeader(http.StatusOK)
	_, _ = res.Write([]byte("ok"))
}
