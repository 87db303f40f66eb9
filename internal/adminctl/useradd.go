package adminctl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/catalogadmin/internal/common"
	"github.com/dmitrijs2005/catalogadmin/internal/server/models"
)

// ErrPasswordMismatch is returned when the confirmation differs.
var ErrPasswordMismatch = errors.New("passwords do not match")

// Accounts creates operators and resets their passwords.
type Accounts interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	SetPassword(ctx context.Context, email, password string) error
}

type UserAddOptions struct {
	// Email is prompted for when empty.
	Email string
	// Reset changes the password of an existing operator instead of
	// creating one.
	Reset bool
}

// UserAdd asks for a password twice and creates the operator, or resets
// its password with Reset.
func UserAdd(ctx context.Context, acc Accounts, reader *bufio.Reader, w io.Writer, opts UserAddOptions) error {
	email := opts.Email
	if email == "" {
		var err error
		if email, err = GetSimpleText(reader, "Email", w); err != nil {
			return fmt.Errorf("read email: %w", err)
		}
	}

	pw, err := GetPassword(w, "Password")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassword(w, "Repeat password")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return ErrPasswordMismatch
	}

	if opts.Reset {
		if err := acc.SetPassword(ctx, email, string(pw)); err != nil {
			return err
		}
		fmt.Fprintf(w, "password of %s updated\n", email)
		return nil
	}

	u, err := acc.Register(ctx, email, string(pw))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "user %s created (id %s)\n", u.Email, u.ID)
	return nil
}
