package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// UserHeader é o usuário autenticado repassado aos serviços
const UserHeader = "X-User-ID"

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", to)
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

// Router encaminha /api/bets* ao bet-service e /api/wallet* ao wallet-service,
// tirando só o prefixo /api.
func Router(log *zap.Logger, betURL, walletURL string) (http.Handler, error) {
	bet, err := rp(betURL)
	if err != nil {
		return nil, err
	}
	wallet, err := rp(walletURL)
	if err != nil {
		return nil, err
	}
	for name, p := range map[string]*httputil.ReverseProxy{"bet-service": bet, "wallet-service": wallet} {
		name := name
		p.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			log.Warn("upstream failed", zap.String("upstream", name), zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream unavailable","code":"internal"}`))
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/api/bets", http.StripPrefix("/api", bet))
	mux.Handle("/api/bets/", http.StripPrefix("/api", bet))
	mux.Handle("/api/wallet", http.StripPrefix("/api", wallet))
	mux.Handle("/api/wallet/", http.StripPrefix("/api", wallet))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return withCORS(mux), nil
}

func withCORS(h http.Handler) http.Handler {
	allowed := strings.Join([]string{"Content-Type", "Authorization", UserHeader}, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", allowed)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
