package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"residentportal/internal/domain"
	"residentportal/internal/observability"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type UserRepository interface {
	FindByID(id uint) (*domain.User, error)
	FindByUsername(username string) (*domain.User, error)
	FindByZaloID(zaloID string) (*domain.User, error)
	ExistsByUsername(username string) (bool, error)
	ExistsByEmail(email string) (bool, error)
	Create(user *domain.User) error
	Update(user *domain.User) error
	UpdateLastLogin(id uint, at time.Time) error
	UpdateStatus(id uint, status domain.UserStatus) error
	ListByStatus(status domain.UserStatus) ([]domain.User, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByID(id uint) (*domain.User, error) {
	return r.findOne("find_by_id", func(q *gorm.DB) *gorm.DB {
		return q.Where("id = ?", id)
	})
}

func (r *GormUserRepository) FindByUsername(username string) (*domain.User, error) {
	return r.findOne("find_by_username", func(q *gorm.DB) *gorm.DB {
		return q.Where("username = ?", username)
	})
}

func (r *GormUserRepository) FindByZaloID(zaloID string) (*domain.User, error) {
	return r.findOne("find_by_zalo_id", func(q *gorm.DB) *gorm.DB {
		return q.Where("zalo_id = ?", zaloID)
	})
}

func (r *GormUserRepository) findOne(op string, scope func(*gorm.DB) *gorm.DB) (*domain.User, error) {
	var u domain.User
	err := scope(r.db.Preload("Roles")).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "user", op, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "user", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", op, "success")
	return &u, nil
}

func (r *GormUserRepository) ExistsByUsername(username string) (bool, error) {
	return r.exists("exists_by_username", "username = ?", username)
}

func (r *GormUserRepository) ExistsByEmail(email string) (bool, error) {
	return r.exists("exists_by_email", "email = ?", email)
}

func (r *GormUserRepository) exists(op, cond string, arg any) (bool, error) {
	var count int64
	err := r.db.Model(&domain.User{}).Where(cond, arg).Count(&count).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", op, "error")
		return false, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", op, "success")
	return count > 0, nil
}

func (r *GormUserRepository) Create(user *domain.User) error {
	err := r.db.Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordRepositoryOperation(context.Background(), "user", "create", "conflict")
			return ErrUserExists
		}
		observability.RecordRepositoryOperation(context.Background(), "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "create", "success")
	return nil
}

func (r *GormUserRepository) Update(user *domain.User) error {
	err := r.db.Save(user).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "update", "success")
	return nil
}

func (r *GormUserRepository) UpdateLastLogin(id uint, at time.Time) error {
	err := r.db.Model(&domain.User{}).Where("id = ?", id).Update("last_login", at).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_last_login", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "update_last_login", "success")
	return nil
}

func (r *GormUserRepository) UpdateStatus(id uint, status domain.UserStatus) error {
	res := r.db.Model(&domain.User{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_status", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "user", "update_status", "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "update_status", "success")
	return nil
}

func (r *GormUserRepository) ListByStatus(status domain.UserStatus) ([]domain.User, error) {
	var users []domain.User
	err := r.db.Preload("Roles").Where("status = ?", status).Order("created_at ASC").Find(&users).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "user", "list_by_status", "error")
		return users, err
	}
	observability.RecordRepositoryOperation(context.Background(), "user", "list_by_status", "success")
	return users, nil
}
