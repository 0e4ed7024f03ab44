package config

import (
	"sync"

	syncdconfig "github.com/driveline/syncd/pkg/config"
)

var (
	txRetry     int
	txRetryOnce sync.Once
)

const minTxRetry = 3

// GetTxRetry returns how many times a failed transaction is attempted. It reads
// SYNCD_TX_RETRY from the installed configuration once.
func GetTxRetry() int {
	txRetryOnce.Do(func() {
		txRetry = TxRetryFrom(syncdconfig.GetConfig())
	})

	return txRetry
}

// TxRetryFrom reads SYNCD_TX_RETRY from c and never returns less than 3.
func TxRetryFrom(c syncdconfig.Configer) int {
	n := c.GetIntKeyWithDefault(syncdconfig.TxRetryKey, minTxRetry)
	if n < minTxRetry {
		return minTxRetry
	}

	return n
}
