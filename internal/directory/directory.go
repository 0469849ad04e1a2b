// Package directory keeps the user details used to address notifications.
package directory

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"refill-api-server/internal/apperror"
	"refill-api-server/internal/identity"
	"refill-api-server/internal/logger"
	"refill-api-server/internal/models"
	"refill-api-server/internal/repository"
	"refill-api-server/internal/store"
)

type Repo = repository.Repository[models.UserDetails, *models.UserDetails]

type Directory struct {
	repo *Repo
	log  *logger.Logger
}

func New(s store.Store, log *logger.Logger) *Directory {
	if log == nil {
		log = logger.Nop()
	}
	return &Directory{
		repo: repository.New[models.UserDetails](s, store.KindUserDetails),
		log:  log.WithComponent("directory"),
	}
}

func validate(u *models.UserDetails) error {
	if strings.TrimSpace(u.UserID) == "" {
		return apperror.NewValidation("userId is required")
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return apperror.NewValidation("a valid email is required").WithDetail("email", u.Email)
	}
	switch u.Role {
	case identity.RoleAdmin, identity.RoleUser:
	case "":
		u.Role = identity.RoleUser
	default:
		return apperror.NewValidation("role must be Admin or User").WithDetail("role", u.Role)
	}
	return nil
}

// Create adds a user. A second entry for the same userId is a Conflict.
func (d *Directory) Create(ctx context.Context, u *models.UserDetails) error {
	if err := validate(u); err != nil {
		return err
	}
	existing, err := d.ByUserID(ctx, u.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperror.NewDuplicate("user", models.FieldUserID, u.UserID)
	}
	u.ID = uuid.NewString()
	if err := d.repo.Create(ctx, u); err != nil {
		return err
	}
	d.log.Infow("user created", "id", u.ID, "userId", u.UserID, "role", u.Role)
	return nil
}

func (d *Directory) Get(ctx context.Context, id string) (*models.UserDetails, error) {
	u, err := d.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperror.NewNotFound("user", id)
	}
	return u, nil
}

func (d *Directory) List(ctx context.Context) ([]models.UserDetails, error) {
	return d.repo.ListAll(ctx)
}

// Update overwrites the editable fields of the user with the given id.
func (d *Directory) Update(ctx context.Context, id string, changes models.UserDetails) (*models.UserDetails, error) {
	u, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if changes.UserID != "" && changes.UserID != u.UserID {
		return nil, apperror.NewValidation("userId cannot be changed")
	}
	if changes.FirstName != "" {
		u.FirstName = changes.FirstName
	}
	if changes.LastName != "" {
		u.LastName = changes.LastName
	}
	if changes.Email != "" {
		u.Email = changes.Email
	}
	if changes.Role != "" {
		u.Role = changes.Role
	}
	if err := validate(u); err != nil {
		return nil, err
	}
	if err := d.repo.Replace(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (d *Directory) Delete(ctx context.Context, id string) error {
	return d.repo.Delete(ctx, id)
}

// ByUserID returns nil when the identity provider subject is unknown.
func (d *Directory) ByUserID(ctx context.Context, userID string) (*models.UserDetails, error) {
	users, err := d.repo.Find(ctx, store.Where(models.FieldUserID, store.Eq, userID))
	if err != nil || len(users) == 0 {
		return nil, err
	}
	return &users[0], nil
}

func (d *Directory) AdminEmails(ctx context.Context) ([]string, error) {
	return d.emailsForRole(ctx, identity.RoleAdmin)
}

func (d *Directory) UserEmails(ctx context.Context) ([]string, error) {
	return d.emailsForRole(ctx, identity.RoleUser)
}

func (d *Directory) emailsForRole(ctx context.Context, role string) ([]string, error) {
	users, err := d.repo.Find(ctx, store.Where(models.FieldRole, store.Eq, role))
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(users))
	for _, u := range users {
		if u.Email != "" {
			emails = append(emails, u.Email)
		}
	}
	return emails, nil
}

// EmailFor resolves the address of userID.
func (d *Directory) EmailFor(ctx context.Context, userID string) (string, error) {
	u, err := d.ByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil || u.Email == "" {
		return "", apperror.NewNotFound("user email", userID)
	}
	return u.Email, nil
}
