package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-books/internal/auth"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

// UserCreator is satisfied by auth.Service.
type UserCreator interface {
	CreateUser(ctx context.Context, email, name, password string, role rbac.Role) (*auth.User, error)
}

// UsersCLI provisions back-office users.
type UsersCLI struct {
	users UserCreator
}

// NewUsersCLI constructs the helper.
func NewUsersCLI(users UserCreator) *UsersCLI {
	return &UsersCLI{users: users}
}

// UsersCreateOptions defines the flags of `users create`.
type UsersCreateOptions struct {
	Email      string
	Name       string
	Password   string
	Role       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CreateCommand creates a user and prints its id.
func (c *UsersCLI) CreateCommand(ctx context.Context, opts UsersCreateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	role := rbac.Role(opts.Role)
	if role == "" {
		role = rbac.RoleStaff
	}
	if !role.Valid() {
		_, _ = fmt.Fprintf(opts.Stderr, "users create: unknown role %q (admin, staff, viewer)\n", opts.Role)
		return 2
	}
	user, err := c.users.CreateUser(ctx, opts.Email, opts.Name, opts.Password, role)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "users create: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(user); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "users create: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	_, _ = fmt.Fprintf(opts.Stdout, "created user %d <%s> with role %s\n", user.ID, user.Email, user.Role)
	return 0
}
