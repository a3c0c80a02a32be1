package service

import (
	"context"
	"fmt"

	"github.com/syssam/graft"
	"github.com/syssam/graft/dialect"
)

// txState tracks the transaction of one outer call.
type txState uint8

const (
	txNotStarted txState = iota
	txActive
	txCommitted
	txRolledBack
)

func (s txState) String() string {
	switch s {
	case txNotStarted:
		return "not started"
	case txActive:
		return "active"
	case txCommitted:
		return "committed"
	case txRolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("txState(%d)", uint8(s))
	}
}

// scope is the transaction owned by an outer Store or Update call.
type scope struct {
	tx    dialect.Tx
	state txState
}

func (s *scope) begin(ctx context.Context, drv dialect.Driver) error {
	if s.state != txNotStarted {
		return fmt.Errorf("begin %s transaction: %w", s.state, graft.ErrTxDone)
	}
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.tx, s.state = tx, txActive
	return nil
}

// active returns the transaction while phases may still run against it.
func (s *scope) active() (dialect.Tx, error) {
	if s.state != txActive {
		return nil, fmt.Errorf("%s transaction: %w", s.state, graft.ErrTxDone)
	}
	return s.tx, nil
}

func (s *scope) commit() error {
	tx, err := s.active()
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		s.state = txRolledBack
		return fmt.Errorf("commit transaction: %w", err)
	}
	s.state = txCommitted
	return nil
}

// rollback is a no-op once the transaction is finished.
func (s *scope) rollback() error {
	if s.state != txActive {
		return nil
	}
	s.state = txRolledBack
	if err := s.tx.Rollback(); err != nil {
		return &graft.RollbackError{Err: err}
	}
	return nil
}
