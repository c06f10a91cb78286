// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	tcontainers "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/store"
)

// setupPostgresContainer starts a PostgreSQL container, runs the
// migrations, and returns a ready credential store.
func setupPostgresContainer() (*postgres.Store, func(), error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gatehouse_test"),
		tcpostgres.WithUsername("gatehouse"),
		tcpostgres.WithPassword("gatehouse"),
		tcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	credStore, err := postgres.NewStore(pool)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return credStore, cleanup, nil
}

var _ = Describe("Store", func() {
	var credStore *postgres.Store
	var cleanup func()
	ctx := context.Background()

	BeforeEach(func() {
		var err error
		credStore, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		cleanup()
	})

	newUser := func(username, email string) *auth.User {
		u, err := auth.NewUser(username, "Test", "User", email,
			"$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA")
		Expect(err).NotTo(HaveOccurred())
		return u
	}

	insertUser := func(u *auth.User) {
		err := credStore.InTx(ctx, func(tx auth.StoreTx) error {
			return tx.InsertUser(ctx, u)
		})
		Expect(err).NotTo(HaveOccurred())
	}

	Describe("users", func() {
		It("round-trips a user by username or email", func() {
			u := newUser("hsolo", "hsolo@example.com")
			insertUser(u)

			err := credStore.InTx(ctx, func(tx auth.StoreTx) error {
				byName, err := tx.FindUserByUsernameOrEmail(ctx, "HSOLO")
				Expect(err).NotTo(HaveOccurred())
				Expect(byName.ID).To(Equal(u.ID))

				byEmail, err := tx.FindUserByEmail(ctx, "HSolo@Example.COM")
				Expect(err).NotTo(HaveOccurred())
				Expect(byEmail.ID).To(Equal(u.ID))
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects duplicate usernames", func() {
			insertUser(newUser("hsolo", "hsolo@example.com"))

			dup := newUser("hsolo", "other@example.com")
			err := credStore.InTx(ctx, func(tx auth.StoreTx) error {
				return tx.InsertUser(ctx, dup)
			})
			Expect(err).To(MatchError(auth.ErrDuplicate))
		})

		It("cascades sessions and reset tokens on delete", func() {
			u := newUser("hsolo", "hsolo@example.com")
			insertUser(u)

			err := credStore.InTx(ctx, func(tx auth.StoreTx) error {
				session, err := auth.NewSession(u.ID, "sess-tok", "198.51.100.7",
					time.Now().Add(auth.SessionTTL))
				Expect(err).NotTo(HaveOccurred())
				if err := tx.InsertSession(ctx, session); err != nil {
					return err
				}
				reset, err := auth.NewPasswordResetToken(u.ID, "reset-tok",
					time.Now().Add(auth.ResetTokenTTL))
				Expect(err).NotTo(HaveOccurred())
				return tx.InsertResetToken(ctx, reset)
			})
			Expect(err).NotTo(HaveOccurred())

			err = credStore.InTx(ctx, func(tx auth.StoreTx) error {
				return tx.DeleteUser(ctx, u.ID)
			})
			Expect(err).NotTo(HaveOccurred())

			err = credStore.InTx(ctx, func(tx auth.StoreTx) error {
				_, err := tx.FindOpenSession(ctx, u.ID)
				Expect(err).To(MatchError(auth.ErrNotFound))
				_, err = tx.FindResetToken(ctx, "reset-tok")
				Expect(err).To(MatchError(auth.ErrNotFound))
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("sessions", func() {
		var u *auth.User

		BeforeEach(func() {
			u = newUser("lorgana", "lorgana@example.com")
			insertUser(u)
		})

		It("finds only the open session", func() {
			err := credStore.InTx(ctx, func(tx auth.StoreTx) error {
				session, err := auth.NewSession(u.ID, "tok-1", "",
					time.Now().Add(auth.SessionTTL))
				Expect(err).NotTo(HaveOccurred())
				if err := tx.InsertSession(ctx, session); err != nil {
					return err
				}

				open, err := tx.FindOpenSession(ctx, u.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(open.Token).To(Equal("tok-1"))
				Expect(open.IsOpen()).To(BeTrue())

				if err := tx.CloseSession(ctx, "tok-1", time.Now()); err != nil {
					return err
				}
				_, err = tx.FindOpenSession(ctx, u.ID)
				Expect(err).To(MatchError(auth.ErrNotFound))
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports expired open sessions with usernames", func() {
			err := credStore.InTx(ctx, func(tx auth.StoreTx) error {
				expired, err := auth.NewSession(u.ID, "tok-old", "",
					time.Now().Add(-time.Minute))
				Expect(err).NotTo(HaveOccurred())
				return tx.InsertSession(ctx, expired)
			})
			Expect(err).NotTo(HaveOccurred())

			err = credStore.InTx(ctx, func(tx auth.StoreTx) error {
				found, err := tx.FindExpiredOpenSessions(ctx, time.Now())
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(ConsistOf(auth.ExpiredSession{
					Token:    "tok-old",
					Username: "lorgana",
				}))
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("password resets", func() {
		It("consumes tokens and clears the reset flag", func() {
			u := newUser("crike", "crike@example.com")
			insertUser(u)

			err := credStore.InTx(ctx, func(tx auth.StoreTx) error {
				reset, err := auth.NewPasswordResetToken(u.ID, "reset-tok",
					time.Now().Add(auth.ResetTokenTTL))
				Expect(err).NotTo(HaveOccurred())
				if err := tx.InsertResetToken(ctx, reset); err != nil {
					return err
				}
				return tx.MarkPasswordResetRequired(ctx, u.ID, true)
			})
			Expect(err).NotTo(HaveOccurred())

			err = credStore.InTx(ctx, func(tx auth.StoreTx) error {
				if err := tx.UpdatePasswordAndClearResetFlag(ctx, u.ID, "new-digest"); err != nil {
					return err
				}
				n, err := tx.DeleteResetTokens(ctx, u.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(int64(1)))
				return nil
			})
			Expect(err).NotTo(HaveOccurred())

			err = credStore.InTx(ctx, func(tx auth.StoreTx) error {
				got, err := tx.FindUserByEmail(ctx, "crike@example.com")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.PasswordDigest).To(Equal("new-digest"))
				Expect(got.PasswordResetRequired).To(BeFalse())
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("transactions", func() {
		It("rolls back all writes when fn fails", func() {
			u := newUser("rollback", "rollback@example.com")

			errBoom := auth.ErrNotFound
			err := credStore.InTx(ctx, func(tx auth.StoreTx) error {
				if err := tx.InsertUser(ctx, u); err != nil {
					return err
				}
				return errBoom
			})
			Expect(err).To(MatchError(errBoom))

			err = credStore.InTx(ctx, func(tx auth.StoreTx) error {
				_, err := tx.FindUserByEmail(ctx, "rollback@example.com")
				Expect(err).To(MatchError(auth.ErrNotFound))
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
		})
	})
})

var _ = Describe("Ping", func() {
	It("succeeds against a live database", func() {
		credStore, cleanup, err := setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
		defer cleanup()

		Expect(credStore.Ping(context.Background())).To(Succeed())
	})
})
