package pkg

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

var ContentType = struct {
	JSON string
	Text string
}{
	JSON: "application/json",
	Text: "text/plain",
}

func WriteResponse(w http.ResponseWriter, contentType string, statusCode int, message string) {
	WriteResponseBytes(w, contentType, statusCode, []byte(message))
}

func WriteResponseBytes(w http.ResponseWriter, contentType string, statusCode int, message []byte) {
	if contentType != "" {
		w.Header().Add("Content-Type", contentType)
	}
	w.WriteHeader(statusCode)
	if _, err := w.Write(message); err != nil {
		log.Errorf("failed to write response [%s]: %s", message, err)
	}
}

func WriteTextResponseOK(w http.ResponseWriter, message string) {
	WriteResponse(w, ContentType.Text, http.StatusOK, message)
}

func WriteJSONResponseOK(w http.ResponseWriter, message string) {
	WriteResponse(w, ContentType.JSON, http.StatusOK, message)
}

func WriteJSONResponseBytesOK(w http.ResponseWriter, message []byte) {
	WriteResponseBytes(w, ContentType.JSON, http.StatusOK, message)
}
