// Package domain holds a small account aggregate used by the es package
// tests.
package domain

import (
	"encoding/json"
	"fmt"

	"github.com/axleworks/axle-go/core/es"
)

type (
	Account struct {
		es.BaseAggregate

		Balance        int64 `json:"balance"`
		NumDeposits    int   `json:"num_deposits"`
		NumWithdrawals int   `json:"num_withdrawals"`
		NumTotalEvents int   `json:"num_total_events"`
	}

	Deposited struct {
		Amount int64 `json:"amount"`
	}

	Withdrawn struct {
		Amount int64 `json:"amount"`
	}
)

func (a *Account) AggregateType() string { return "account" }

func (a *Account) Register(r es.Registrar) {
	es.RegisterEvents(r, es.Event[Deposited](), es.Event[Withdrawn]())
}

func (a *Account) Apply(event any) error {
	switch e := event.(type) {
	case *Deposited:
		a.Balance += e.Amount
		a.NumDeposits++
		a.NumTotalEvents++
		return nil
	case *Withdrawn:
		a.Balance -= e.Amount
		a.NumWithdrawals++
		a.NumTotalEvents++
		return nil
	default:
		return a.BaseAggregate.Apply(event)
	}
}

func (a *Account) Snapshot() ([]byte, error)         { return json.Marshal(a) }
func (a *Account) RestoreSnapshot(data []byte) error { return json.Unmarshal(data, a) }

var _ es.Snapshottable = (*Account)(nil)

// === Commands ===

func (a *Account) Deposit(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive, got %d", amount)
	}
	return es.RaiseAndApply(a, &Deposited{Amount: amount})
}

func (a *Account) Withdraw(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}
	if a.Balance < amount {
		return fmt.Errorf("insufficient balance: have %d, want %d", a.Balance, amount)
	}
	return es.RaiseAndApply(a, &Withdrawn{Amount: amount})
}

func NewAccount(id string) *Account {
	a := &Account{}
	a.SetID(id)
	return a
}
