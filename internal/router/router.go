package router

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-lending-go/internal/attestation"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/deploy"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/indexer"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/registry"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/vault"
	"github.com/ovaphlow/pitchfork/service-lending-go/internal/workproof"
	"github.com/ovaphlow/pitchfork/service-lending-go/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

type requestIDKey struct{}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDMiddleware propagates X-Request-ID, generating one when absent.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 64 {
				id = utilities.NewRequestID()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// LoggingMiddleware logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", w.Header().Get("X-Request-ID"),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			if r.TLS != nil {
				// 30 days
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Deps are the services the API is mounted over.
type Deps struct {
	BasePath   string
	Deployment *deploy.Deployment
	Auth       *auth.Service
	// Indexer is optional; history routes are only mounted when it is set.
	Indexer *indexer.Service
}

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, deps Deps) http.Handler {
	mux := http.NewServeMux()
	d := deps.Deployment
	p := deps.BasePath
	req, op := auth.Required, auth.OperatorOnly

	mux.HandleFunc("GET "+p+"/health", func(w http.ResponseWriter, r *http.Request) {
		utilities.WriteJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"chain_id": d.Chain.ChainID().String(),
			"height":   d.Chain.Height(),
		})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	authH := auth.NewHandler(deps.Auth, logger.Named("auth"))
	mux.HandleFunc("POST "+p+"/auth/challenge", authH.Challenge)
	mux.HandleFunc("POST "+p+"/auth/login", authH.Login)

	regH := registry.NewHandler(d.Registry, logger.Named("registry"))
	mux.HandleFunc("GET "+p+"/workers", regH.List)
	mux.HandleFunc("POST "+p+"/workers", req(regH.Register))
	mux.HandleFunc("GET "+p+"/workers/{address}", regH.Get)
	mux.HandleFunc("POST "+p+"/workers/{address}/deactivate", req(regH.Deactivate))
	mux.HandleFunc("POST "+p+"/workers/{address}/reactivate", req(regH.Reactivate))

	proofH := workproof.NewHandler(d.WorkProof, logger.Named("workproof"))
	mux.HandleFunc("GET "+p+"/proofs", proofH.Count)
	mux.HandleFunc("POST "+p+"/proofs", req(proofH.Submit))
	mux.HandleFunc("GET "+p+"/proofs/{id}", proofH.Get)
	mux.HandleFunc("GET "+p+"/workers/{address}/proofs", proofH.WorkerProofs)
	mux.HandleFunc("GET "+p+"/workers/{address}/stats", proofH.WorkerStats)
	mux.HandleFunc("GET "+p+"/verifiers", proofH.Verifiers)
	mux.HandleFunc("POST "+p+"/verifiers", req(proofH.Authorize))
	mux.HandleFunc("DELETE "+p+"/verifiers/{address}", req(proofH.Revoke))

	attH := attestation.NewHandler(d.Verifier, d.Signer, logger.Named("attestation"))
	mux.HandleFunc("POST "+p+"/attestations", op(attH.Issue))
	mux.HandleFunc("POST "+p+"/attestations/verify", attH.Verify)
	mux.HandleFunc("POST "+p+"/attestations/hash", attH.Hash)
	mux.HandleFunc("GET "+p+"/attestations/domain", attH.Domain)
	mux.HandleFunc("GET "+p+"/attestations/nonces/{nonce}", attH.Nonce)
	mux.HandleFunc("GET "+p+"/signers", attH.Signers)
	mux.HandleFunc("POST "+p+"/signers", req(attH.Approve))
	mux.HandleFunc("DELETE "+p+"/signers/{address}", req(attH.Revoke))

	tokH := token.NewHandler(d.Token, logger.Named("token"))
	mux.HandleFunc("GET "+p+"/token", tokH.Info)
	mux.HandleFunc("GET "+p+"/token/balances/{address}", tokH.Balance)
	mux.HandleFunc("GET "+p+"/token/allowances/{owner}/{spender}", tokH.Allowance)
	mux.HandleFunc("POST "+p+"/token/transfer", req(tokH.Transfer))
	mux.HandleFunc("POST "+p+"/token/approve", req(tokH.Approve))
	mux.HandleFunc("POST "+p+"/token/mint", req(tokH.Mint))

	vaultH := vault.NewHandler(d.Vault, d.Token.Decimals(), logger.Named("vault"))
	mux.HandleFunc("GET "+p+"/vault", vaultH.Pool)
	mux.HandleFunc("POST "+p+"/vault/deposit", req(vaultH.Deposit))
	mux.HandleFunc("POST "+p+"/vault/withdraw", req(vaultH.Withdraw))
	mux.HandleFunc("POST "+p+"/loans", req(vaultH.Request))
	mux.HandleFunc("POST "+p+"/loans/repay", req(vaultH.Repay))
	mux.HandleFunc("GET "+p+"/loans/{borrower}", vaultH.Get)
	mux.HandleFunc("POST "+p+"/loans/{borrower}/default", req(vaultH.MarkDefault))

	if deps.Indexer != nil {
		idxH := indexer.NewHandler(deps.Indexer, logger.Named("indexer"))
		mux.HandleFunc("GET "+p+"/history/events", idxH.Events)
		mux.HandleFunc("GET "+p+"/history/workers/{address}/proofs", idxH.WorkerProofs)
		mux.HandleFunc("GET "+p+"/history/workers/{address}/stats", idxH.WorkerStats)
		mux.HandleFunc("GET "+p+"/history/borrowers/{address}", idxH.BorrowerHistory)
	}

	var handler http.Handler = mux
	handler = deps.Auth.Middleware(handler)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
