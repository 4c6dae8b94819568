// Package repository implements persistence for instances, the outbound
// message queue, inbound events and auto-reply rules on top of Postgres.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// repositoryImpl is the concrete implementation of Repository interface.
// db is nil when the repository is bound to a transaction.
type repositoryImpl struct {
	db       *sqlx.DB
	instance InstanceRepository
	message  MessageRepository
	inbound  InboundRepository
	rule     RuleRepository
}

// NewRepository creates a new repository instance.
func NewRepository(db *sqlx.DB) Repository {
	r := bind(db)
	r.db = db
	return r
}

func bind(ext sqlx.ExtContext) *repositoryImpl {
	return &repositoryImpl{
		instance: NewInstanceRepository(ext),
		message:  NewMessageRepository(ext),
		inbound:  NewInboundRepository(ext),
		rule:     NewRuleRepository(ext),
	}
}

func (r *repositoryImpl) Instance() InstanceRepository { return r.instance }
func (r *repositoryImpl) Message() MessageRepository   { return r.message }
func (r *repositoryImpl) Inbound() InboundRepository   { return r.inbound }
func (r *repositoryImpl) Rule() RuleRepository         { return r.rule }

// Ping checks if the database connection is healthy.
func (r *repositoryImpl) Ping() error {
	if r.db == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	return r.db.PingContext(ctx)
}

// InTx runs fn inside a transaction. Calls on a repository that is already
// bound to a transaction join it.
func (r *repositoryImpl) InTx(ctx context.Context, fn func(tx Repository) error) (err error) {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(bind(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
