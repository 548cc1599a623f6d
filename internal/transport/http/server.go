package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/k-code-yt/payment-webhooks/internal/service/pipeline"
)

const maxBodyBytes = 1 << 20

type Server struct {
	port            string
	signatureHeader string
	pipeline        *pipeline.Pipeline
}

func NewServer(port, signatureHeader string, p *pipeline.Pipeline) *Server {
	return &Server{
		port:            port,
		signatureHeader: signatureHeader,
		pipeline:        p,
	}
}

type errorBody struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

type responseBody struct {
	Received bool       `json:"received"`
	Error    *errorBody `json:"error,omitempty"`
}

func writeJSON(rw http.ResponseWriter, status int, v any) error {
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(status)
	return json.NewEncoder(rw).Encode(v)
}

// handleWebhook buffers the exact wire bytes and hands them to the pipeline
// untouched. Re-serializing before verification would break the signature.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, responseBody{
			Error: &errorBody{Category: "method_not_allowed", Message: "webhook deliveries are POSTed"},
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, responseBody{
			Error: &errorBody{Category: "unreadable_body", Message: "request body could not be read"},
		})
		return
	}
	defer r.Body.Close()

	res := s.pipeline.Process(r.Context(), body, r.Header.Get(s.signatureHeader))
	if res.Category != pipeline.CategoryNone {
		writeJSON(w, res.Status, responseBody{
			Error: &errorBody{Category: string(res.Category), Message: res.Message},
		})
		return
	}
	writeJSON(w, res.Status, responseBody{Received: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", instrumentHandler("webhook", s.handleWebhook))
	mux.HandleFunc("/health", instrumentHandler("health", s.handleHealth))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func (s *Server) Listen() error {
	logrus.Infof("listening on port :%s", s.port)
	return s.HTTPServer().ListenAndServe()
}
