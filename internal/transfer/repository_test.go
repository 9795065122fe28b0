package transfer

import (
	"context"
	"log"
	"testing"
	"time"

	"codedrop-go/internal/code"
	"codedrop-go/internal/database"
	"codedrop-go/internal/database/migrate"
	"codedrop-go/internal/models"
	"codedrop-go/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	testDatabase string
	testPassword string
	testUsername string
	testHost     string
	testPort     string
)

// mustStartPostgresContainer initializes a test PostgreSQL container
func mustStartPostgresContainer() (func(context.Context) error, error) {
	var (
		dbName = "testdb"
		dbPwd  = "testpass"
		dbUser = "testuser"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	testDatabase = dbName
	testPassword = dbPwd
	testUsername = dbUser

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}

	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testHost = dbHost
	testPort = dbPort.Port()

	return dbContainer.Terminate, err
}

func TestMain(m *testing.M) {
	teardown, err := mustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container: %v", err)
	}

	m.Run()

	if teardown != nil && teardown(context.Background()) != nil {
		log.Fatalf("could not teardown postgres container: %v", err)
	}
}

// setupTestDB creates a test database instance with migrations
func setupTestDB(t *testing.T) *database.DB {
	cfg := database.Config{
		Host:     testHost,
		Port:     testPort,
		Database: testDatabase,
		Username: testUsername,
		Password: testPassword,
		Schema:   "public",
	}
	db, err := database.New(cfg)
	require.NoError(t, err)
	require.NotNil(t, db)

	err = migrate.RunMigrations(db.DB)
	require.NoError(t, err)

	return db
}

// createTestCode inserts an anonymous upload code
func createTestCode(t *testing.T, db *database.DB) *models.Code {
	value, err := code.Generate()
	require.NoError(t, err)

	c := &models.Code{
		ID:             uuid.New(),
		Code:           value,
		Kind:           models.CodeKindUpload,
		CompressStatus: models.CompressIdle,
		CreatedAt:      time.Now(),
	}
	repo := code.NewPostgresRepository(db.DB)
	require.NoError(t, repo.Create(context.Background(), c))
	return c
}

// createTestSession inserts a session bound to the given code
func createTestSession(t *testing.T, db *database.DB, codeID uuid.UUID) *models.Session {
	sess := &models.Session{
		ID:          uuid.New(),
		CodeID:      codeID,
		Fingerprint: uuid.New().String(),
		Status:      models.SessionPicking,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	repo := session.NewPostgresRepository(db.DB)
	require.NoError(t, repo.Create(context.Background(), sess))
	return sess
}

// createTestFile inserts a stored file associated with the given codes
func createTestFile(t *testing.T, db *database.DB, relativePath string, codeIDs ...uuid.UUID) *models.StoredFile {
	file := &models.StoredFile{
		ID:              uuid.New(),
		Name:            relativePath,
		RelativePath:    relativePath,
		SizeBytes:       128,
		StorageBasePath: "files/" + uuid.New().String(),
		CreatedAt:       time.Now(),
	}

	repo := NewPostgresFileRepository(db.DB)
	tx, err := db.DB.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.CreateTx(tx, file, codeIDs))
	require.NoError(t, tx.Commit())
	return file
}

func TestFileRepository_ListByCode(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPostgresFileRepository(db.DB)
	ctx := context.Background()

	t.Run("returns files ordered by path", func(t *testing.T) {
		c := createTestCode(t, db)
		createTestFile(t, db, "b/second.txt", c.ID)
		createTestFile(t, db, "a/first.txt", c.ID)

		files, err := repo.ListByCode(ctx, c.ID)
		assert.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "a/first.txt", files[0].RelativePath)
		assert.Equal(t, "b/second.txt", files[1].RelativePath)
	})

	t.Run("empty for code without files", func(t *testing.T) {
		c := createTestCode(t, db)

		files, err := repo.ListByCode(ctx, c.ID)
		assert.NoError(t, err)
		assert.Empty(t, files)
	})
}

func TestFileRepository_GetForCode(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPostgresFileRepository(db.DB)
	ctx := context.Background()

	t.Run("returns file associated with code", func(t *testing.T) {
		c := createTestCode(t, db)
		file := createTestFile(t, db, "doc.pdf", c.ID)

		fetched, err := repo.GetForCode(ctx, file.ID, c.ID)
		assert.NoError(t, err)
		assert.Equal(t, file.ID, fetched.ID)
		assert.Equal(t, file.StorageKey(), fetched.StorageKey())
	})

	t.Run("rejects file belonging to a different code", func(t *testing.T) {
		owner := createTestCode(t, db)
		other := createTestCode(t, db)
		file := createTestFile(t, db, "doc.pdf", owner.ID)

		_, err := repo.GetForCode(ctx, file.ID, other.ID)
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}

func TestFileRepository_Orphans(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPostgresFileRepository(db.DB)
	ctx := context.Background()

	c := createTestCode(t, db)
	associated := createTestFile(t, db, "kept.txt", c.ID)
	orphan := createTestFile(t, db, "orphan.txt")

	orphans, err := repo.ListOrphans(ctx)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(orphans))
	for _, f := range orphans {
		ids = append(ids, f.ID)
	}
	assert.Contains(t, ids, orphan.ID)
	assert.NotContains(t, ids, associated.ID)

	err = repo.DeleteFiles(ctx, []uuid.UUID{orphan.ID})
	assert.NoError(t, err)

	orphans, err = repo.ListOrphans(ctx)
	require.NoError(t, err)
	for _, f := range orphans {
		assert.NotEqual(t, orphan.ID, f.ID)
	}
}

func TestFileRepository_DeleteFilesEmpty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPostgresFileRepository(db.DB)
	assert.NoError(t, repo.DeleteFiles(context.Background(), nil))
}

func TestTokenRepository_Consume(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPostgresTokenRepository(db.DB)
	ctx := context.Background()

	t.Run("consume returns token once", func(t *testing.T) {
		c := createTestCode(t, db)
		sess := createTestSession(t, db, c.ID)

		token := &models.UploadToken{
			Token:        uuid.New(),
			SessionID:    sess.ID,
			StorageKey:   "files/base/photo.jpg",
			FileName:     "photo.jpg",
			RelativePath: "photo.jpg",
			SizeBytes:    2048,
			CreatedAt:    time.Now(),
		}
		require.NoError(t, repo.Create(ctx, token))

		consumed, err := repo.Consume(ctx, token.Token)
		assert.NoError(t, err)
		assert.Equal(t, token.StorageKey, consumed.StorageKey)
		assert.Equal(t, token.SizeBytes, consumed.SizeBytes)
	})

	t.Run("replay is rejected", func(t *testing.T) {
		c := createTestCode(t, db)
		sess := createTestSession(t, db, c.ID)

		token := &models.UploadToken{
			Token:      uuid.New(),
			SessionID:  sess.ID,
			StorageKey: "files/base/once.txt",
			FileName:   "once.txt",
			CreatedAt:  time.Now(),
		}
		require.NoError(t, repo.Create(ctx, token))

		_, err := repo.Consume(ctx, token.Token)
		require.NoError(t, err)

		_, err = repo.Consume(ctx, token.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		_, err := repo.Consume(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestTokenRepository_DeleteBySession(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPostgresTokenRepository(db.DB)
	ctx := context.Background()

	c := createTestCode(t, db)
	sess := createTestSession(t, db, c.ID)

	token := &models.UploadToken{
		Token:      uuid.New(),
		SessionID:  sess.ID,
		StorageKey: "files/base/gone.txt",
		FileName:   "gone.txt",
		CreatedAt:  time.Now(),
	}
	require.NoError(t, repo.Create(ctx, token))

	require.NoError(t, repo.DeleteBySession(ctx, sess.ID))

	_, err := repo.Consume(ctx, token.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
