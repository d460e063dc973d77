package vault

import (
	"math/big"

	"nexumfi/core/types"
	"nexumfi/crypto"
)

const (
	EventTypeInitialized       = "vault.initialized"
	EventTypeDeposit           = "vault.deposit"
	EventTypeWithdraw          = "vault.withdraw"
	EventTypeDisburse          = "vault.disburse"
	EventTypeRepay             = "vault.repay"
	EventTypeLiquidation       = "vault.liquidation"
	EventTypeReservesWithdrawn = "vault.reserves_withdrawn"
	EventTypeBorrowContractSet = "vault.borrow_contract_set"
	EventTypeConfigUpdated     = "vault.config_updated"
	EventTypePaused            = "vault.paused"
	EventTypeUnpaused          = "vault.unpaused"
	EventTypeSharesReset       = "vault.shares_reset"
)

func newVaultEvent(eventType string, account crypto.Address, amounts map[string]*big.Int) *types.Event {
	attrs := make(map[string]string, len(amounts)+1)
	if !account.IsZero() {
		attrs["account"] = account.String()
	}
	for k, v := range amounts {
		if v == nil {
			v = big.NewInt(0)
		}
		attrs[k] = v.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
