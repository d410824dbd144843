package migration

import (
	"github.com/smallbiznis/coinflow/internal/config"
	invoicedomain "github.com/smallbiznis/coinflow/internal/invoice/domain"
	storedomain "github.com/smallbiznis/coinflow/internal/store/domain"
	walletdomain "github.com/smallbiznis/coinflow/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Non-postgres targets (local sqlite, mysql) are schema-managed by
		// gorm directly.
		return conn.AutoMigrate(
			&storedomain.Store{},
			&walletdomain.Wallet{},
			&invoicedomain.Invoice{},
			&invoicedomain.PaymentMethod{},
			&invoicedomain.Discount{},
			&invoicedomain.InvoiceProduct{},
		)
	}),
)
