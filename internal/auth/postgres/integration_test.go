// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HealthHub Contributors

//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/healthhub/healthhub/internal/auth"
	"github.com/healthhub/healthhub/internal/auth/postgres"
)

var _ = Describe("Postgres repositories", func() {
	var (
		ctx      context.Context
		accounts *postgres.AccountRepository
		profiles *postgres.ProfileRepository
		sessions *postgres.SessionRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		accounts = postgres.NewAccountRepository(testPool)
		profiles = postgres.NewProfileRepository(testPool)
		sessions = postgres.NewSessionRepository(testPool)
	})

	newAccount := func(username, email string) *auth.Account {
		a, err := auth.NewAccount(username, email, "hash", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		a.CreatedAt = a.CreatedAt.Truncate(time.Microsecond)
		return a
	}

	Describe("AccountRepository", func() {
		It("assigns increasing ids and finds accounts exactly", func() {
			first := newAccount("ada", "ada@example.com")
			second := newAccount("grace", "grace@example.com")
			Expect(accounts.Create(ctx, first)).To(Succeed())
			Expect(accounts.Create(ctx, second)).To(Succeed())
			Expect(second.ID).To(BeNumerically(">", first.ID))

			got, err := accounts.GetByUsername(ctx, "ada")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(first.ID))
			Expect(got.Email).To(Equal("ada@example.com"))

			_, err = accounts.GetByUsername(ctx, "ADA")
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("round-trips the optional fields", func() {
			phone := "555-0100"
			dob := time.Date(1815, 12, 10, 0, 0, 0, 0, time.UTC)
			a, err := auth.NewAccount("ada", "ada@example.com", "hash", &phone, &dob)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts.Create(ctx, a)).To(Succeed())

			got, err := accounts.GetByID(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(*got.Phone).To(Equal(phone))
			Expect(got.DateOfBirth.Format(auth.DateLayout)).To(Equal("1815-12-10"))
		})

		It("reports which identity field is taken", func() {
			Expect(accounts.Create(ctx, newAccount("ada", "ada@example.com"))).To(Succeed())

			var dup *auth.DuplicateKeyError
			err := accounts.Create(ctx, newAccount("ada", "other@example.com"))
			Expect(errors.As(err, &dup)).To(BeTrue())
			Expect(dup.Field).To(Equal(auth.FieldUsername))

			err = accounts.Create(ctx, newAccount("other", "ada@example.com"))
			Expect(errors.As(err, &dup)).To(BeTrue())
			Expect(dup.Field).To(Equal(auth.FieldEmail))
		})

		It("cascades deletes to the profile and sessions", func() {
			a := newAccount("ada", "ada@example.com")
			Expect(accounts.Create(ctx, a)).To(Succeed())
			p, err := auth.NewProfile("Ada", "Lovelace", auth.GenderUnspecified)
			Expect(err).NotTo(HaveOccurred())
			p.AccountID = a.ID
			Expect(profiles.Create(ctx, p)).To(Succeed())

			_, hash, err := auth.GenerateSessionToken()
			Expect(err).NotTo(HaveOccurred())
			s, err := auth.NewSession(a.ID, auth.DisplayFields{Username: "ada"}, hash, "", "", time.Now().Add(time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions.Create(ctx, s)).To(Succeed())

			Expect(accounts.Delete(ctx, a.ID)).To(Succeed())

			_, err = profiles.GetByAccount(ctx, a.ID)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
			_, err = sessions.GetByTokenHash(ctx, hash)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
			Expect(errors.Is(accounts.Delete(ctx, a.ID), auth.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("ProfileRepository", func() {
		It("rejects a profile for a missing account", func() {
			p, err := auth.NewProfile("Ada", "Lovelace", auth.GenderUnspecified)
			Expect(err).NotTo(HaveOccurred())
			p.AccountID = 999
			Expect(errors.Is(profiles.Create(ctx, p), auth.ErrReferential)).To(BeTrue())
		})
	})

	Describe("SessionRepository", func() {
		It("purges only expired sessions", func() {
			a := newAccount("ada", "ada@example.com")
			Expect(accounts.Create(ctx, a)).To(Succeed())

			now := time.Now().UTC()
			for _, expiry := range []time.Duration{-time.Hour, -time.Minute, time.Hour} {
				_, hash, err := auth.GenerateSessionToken()
				Expect(err).NotTo(HaveOccurred())
				s, err := auth.NewSession(a.ID, auth.DisplayFields{Username: "ada"}, hash, "", "", now.Add(expiry))
				Expect(err).NotTo(HaveOccurred())
				Expect(sessions.Create(ctx, s)).To(Succeed())
			}

			n, err := sessions.DeleteExpired(ctx, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(2)))
		})
	})
})

var _ = Describe("CredentialStore on PostgreSQL", func() {
	var (
		ctx          context.Context
		credentials  *auth.CredentialStore
		manager      *auth.SessionManager
		registration *auth.RegistrationService
		service      *auth.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)

		var err error
		credentials, err = auth.NewCredentialStore(
			postgres.NewAccountRepository(testPool),
			postgres.NewProfileRepository(testPool),
			auth.NewArgon2idHasherWithParams(auth.Argon2Params{Time: 1, Memory: 64, Threads: 1, SaltLen: 16, KeyLen: 32}),
			auth.WithTransactor(postgres.NewTransactor(testPool)),
		)
		Expect(err).NotTo(HaveOccurred())
		manager, err = auth.NewSessionManager(postgres.NewSessionRepository(testPool))
		Expect(err).NotTo(HaveOccurred())
		registration, err = auth.NewRegistrationService(credentials, manager, nil)
		Expect(err).NotTo(HaveOccurred())
		service, err = auth.NewAuthService(credentials, manager, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("registers, signs out, and signs back in", func() {
		handle, token, err := registration.Register(ctx, auth.Caller{}, auth.RegistrationInput{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Email:     "ada@example.com",
			Username:  "ada",
			Password:  "analytical",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(handle.FullName()).To(Equal("Ada Lovelace"))

		Expect(service.SignOut(ctx, auth.Caller{Token: token})).To(Succeed())
		current, err := service.Current(ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(current).To(BeNil())

		handle, _, err = service.SignIn(ctx, auth.Caller{}, "ada", "analytical")
		Expect(err).NotTo(HaveOccurred())
		Expect(handle.FirstName).To(Equal("Ada"))

		_, _, err = service.SignIn(ctx, auth.Caller{}, "ada", "wrong")
		Expect(errors.Is(err, auth.ErrInvalidCredentials)).To(BeTrue())
	})

	It("rolls back the account when the profile insert fails", func() {
		a, err := auth.NewAccount("ada", "ada@example.com", "hash", nil, nil)
		Expect(err).NotTo(HaveOccurred())
		long := make([]byte, 40)
		for i := range long {
			long[i] = 'x'
		}
		p := &auth.Profile{FirstName: string(long), LastName: "Lovelace", Gender: auth.GenderUnspecified}

		_, err = credentials.CreateAccountWithProfile(ctx, a, p)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, auth.ErrStoreUnavailable)).To(BeTrue())
		Expect(a.ID).To(BeZero())

		found, err := credentials.FindByUsername(ctx, "ada")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeNil())
	})
})
