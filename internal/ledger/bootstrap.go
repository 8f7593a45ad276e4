package ledger

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/splits"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/config"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/ledgerclient"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/logger"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/outbox"
)

// FromConfig assembles the anchoring service the way every binary runs it.
func FromConfig(cfg *config.Config, conn *gorm.DB, tx txRunner, observer Observer, logg *logger.Logger) (*Service, error) {
	commission, err := cfg.Split.Commission()
	if err != nil {
		return nil, err
	}
	calculator, err := splits.NewCalculator(commission, cfg.Split.MinorUnits)
	if err != nil {
		return nil, fmt.Errorf("split calculator: %w", err)
	}
	client, err := ledgerclient.NewClient(
		cfg.Ledger.BaseURL,
		cfg.Ledger.APIKey,
		ledgerclient.WithTimeout(cfg.Ledger.Timeout),
		ledgerclient.WithNetwork(cfg.Ledger.Network),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger client: %w", err)
	}
	return NewService(ServiceParams{
		Repository:  NewRepository(conn),
		Orders:      orders.NewRepository(conn),
		TxRunner:    tx,
		Outbox:      outbox.NewService(outbox.NewRepository(conn), logg),
		Client:      client,
		Calculator:  calculator,
		Backoff:     NewBackoff(cfg.Anchor.BaseBackoff, cfg.Anchor.MaxBackoff),
		MaxAttempts: cfg.Anchor.MaxAttempts,
		Lease:       cfg.Anchor.Lease,
		Network:     cfg.Ledger.Network,
		Observer:    observer,
		Logger:      logg,
	})
}
