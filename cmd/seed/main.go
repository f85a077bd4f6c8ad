// seed inserts development sample data for local testing and prints access tokens for it.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/benbjohnson/clock"

	"tenant-authz/internal/config"
	"tenant-authz/internal/db"
	membershipdomain "tenant-authz/internal/membership/domain"
	membershiprepo "tenant-authz/internal/membership/repository"
	orgdomain "tenant-authz/internal/organization/domain"
	orgrepo "tenant-authz/internal/organization/repository"
	policydomain "tenant-authz/internal/policy/domain"
	policyrepo "tenant-authz/internal/policy/repository"
	"tenant-authz/internal/security"
	userdomain "tenant-authz/internal/user/domain"
	userrepo "tenant-authz/internal/user/repository"
)

// devPolicy lets members of the dev org delete tasks on top of the built-in role rules.
const devPolicy = `package tenantauthz.rbac

allow if {
	input.role == "member"
	input.action == "delete"
	input.resource == "tasks"
}
`

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
	devUserID    = "dev-user-001"
	devUser2ID   = "dev-user-002"
	devOrgID     = "dev-org-001"
	devPolicyID  = "dev-policy-001"
	memberEmail  = "member@example.com"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL, db.PoolConfig{MaxOpen: 2})
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	users := userrepo.NewPostgresRepository(conn)
	orgs := orgrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)
	ctx := context.Background()

	existing, err := users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping inserts.")
	} else {
		seed(ctx, cfg, users, orgs, memberships, policies)
	}

	printTokens(cfg)
}

func seed(ctx context.Context, cfg *config.Config, users *userrepo.PostgresRepository, orgs *orgrepo.PostgresRepository,
	memberships *membershiprepo.PostgresRepository, policies *policyrepo.PostgresRepository) {
	passwordHash, err := security.HashPassword(devPassword, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()

	for _, u := range []*userdomain.User{
		{ID: devUserID, Email: devUserEmail, PasswordHash: passwordHash, FirstName: "Dev", LastName: "User", IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: devUser2ID, Email: memberEmail, PasswordHash: passwordHash, FirstName: "Member", IsActive: true, CreatedAt: now, UpdatedAt: now},
	} {
		if err := users.Create(ctx, u); err != nil {
			log.Fatalf("create user %s: %v", u.Email, err)
		}
	}

	if err := orgs.CreateOrganization(ctx, &orgdomain.Org{
		ID: devOrgID, Name: "Acme Dev", Slug: "acme-dev", IsActive: true, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		log.Fatalf("create org: %v", err)
	}

	for _, m := range []*membershipdomain.Membership{
		{UserID: devUserID, OrgID: devOrgID, Role: membershipdomain.RoleOwner, CreatedAt: now},
		{UserID: devUser2ID, OrgID: devOrgID, Role: membershipdomain.RoleMember, CreatedAt: now},
	} {
		if err := memberships.CreateMembership(ctx, m); err != nil {
			log.Fatalf("create membership %s: %v", m.UserID, err)
		}
	}

	if err := policies.Create(ctx, &policydomain.Policy{
		ID: devPolicyID, OrgID: devOrgID, Rules: devPolicy, Enabled: true, CreatedAt: now,
	}); err != nil {
		log.Fatalf("create policy: %v", err)
	}

	log.Printf("Seeded org %s with owner %s and member %s (password %q)", devOrgID, devUserEmail, memberEmail, devPassword)
}

func printTokens(cfg *config.Config) {
	var key interface{} = []byte(cfg.JWTSecret)
	if cfg.JWTPrivateKey != "" {
		signer, err := security.ParseSigningKey(cfg.JWTPrivateKey)
		if err != nil {
			log.Fatalf("jwt private key: %v", err)
		}
		key = signer
	}
	issuer, err := security.NewIssuer(key, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), clock.New())
	if err != nil {
		log.Fatalf("jwt issuer: %v", err)
	}
	for _, u := range []struct{ id, email, role string }{
		{devUserID, devUserEmail, string(membershipdomain.RoleOwner)},
		{devUser2ID, memberEmail, string(membershipdomain.RoleMember)},
	} {
		token, _, expiresAt, err := issuer.IssueAccess(u.id, u.email, devOrgID, u.role)
		if err != nil {
			log.Fatalf("issue token for %s: %v", u.email, err)
		}
		log.Printf("%s (expires %s):\n%s", u.email, expiresAt.Format(time.RFC3339), token)
	}
}
