package farm

import (
	"log/slog"

	"github.com/rickgao/pointfarm/internal/auth"
	"github.com/rickgao/pointfarm/internal/connection"
	"github.com/rickgao/pointfarm/internal/model"
)

// NewSessionFactory returns a factory that signs with the account's key and
// runs a connection.Session through the account's proxy.
func NewSessionFactory(cfg connection.SessionConfig, deps connection.Deps) SessionFactory {
	return func(acc model.Account, logger *slog.Logger) (Runner, error) {
		wallet, err := auth.LoadWallet(acc.PrivateKey)
		if err != nil {
			return nil, err
		}
		d := deps
		d.Signer = wallet
		return connection.NewSession(cfg, acc.Proxy, d, logger), nil
	}
}
