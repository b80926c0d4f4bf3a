package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Begin(ctx context.Context) (repositories.UnitOfWork, error) {
	args := m.Called(ctx)
	var uow repositories.UnitOfWork
	if val := args.Get(0); val != nil {
		uow = val.(repositories.UnitOfWork)
	}
	return uow, args.Error(1)
}

type UnitOfWorkMock struct {
	mock.Mock
}

func (m *UnitOfWorkMock) Users() repositories.UserRepository {
	return m.Called().Get(0).(repositories.UserRepository)
}

func (m *UnitOfWorkMock) Messages() repositories.MessageRepository {
	return m.Called().Get(0).(repositories.MessageRepository)
}

func (m *UnitOfWorkMock) Groups() repositories.GroupRepository {
	return m.Called().Get(0).(repositories.GroupRepository)
}

func (m *UnitOfWorkMock) Likes() repositories.LikeRepository {
	return m.Called().Get(0).(repositories.LikeRepository)
}

func (m *UnitOfWorkMock) Complete() error {
	args := m.Called()
	return args.Error(0)
}

func (m *UnitOfWorkMock) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) GetUserByID(ctx context.Context, id int) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) TouchLastActive(ctx context.Context, id int, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) AddMessage(ctx context.Context, msg *models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, id int) (models.Message, error) {
	args := m.Called(ctx, id)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessageThread(ctx context.Context, currentUsername, otherUsername string) ([]models.Message, error) {
	args := m.Called(ctx, currentUsername, otherUsername)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkDeleted(ctx context.Context, id int, bySender bool) error {
	args := m.Called(ctx, id, bySender)
	return args.Error(0)
}

var (
	_ repositories.Store             = (*StoreMock)(nil)
	_ repositories.UnitOfWork        = (*UnitOfWorkMock)(nil)
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
)
