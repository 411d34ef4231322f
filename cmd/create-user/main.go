package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/stemsi/checkio-backend/internal/apperror"
	"github.com/stemsi/checkio-backend/internal/appstate"
	"github.com/stemsi/checkio-backend/internal/config"
	"github.com/stemsi/checkio-backend/internal/database"
	"github.com/stemsi/checkio-backend/internal/logger"
	"github.com/stemsi/checkio-backend/internal/model"
	"github.com/stemsi/checkio-backend/internal/recordstore"
	"github.com/stemsi/checkio-backend/internal/repository"
	"github.com/stemsi/checkio-backend/internal/service"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "")

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	store := recordstore.NewPostgres(pool)
	userService := service.NewUserService(
		repository.NewUserRepository(store),
		repository.NewRelationRepository(store),
		appstate.New(),
		log,
	)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New User ===")

	fmt.Print("Enter First Name: ")
	first, _ := reader.ReadString('\n')
	first = strings.TrimSpace(first)
	if first == "" {
		fmt.Println("Error: First name is required")
		return
	}

	fmt.Print("Enter Last Name: ")
	last, _ := reader.ReadString('\n')
	last = strings.TrimSpace(last)
	if last == "" {
		fmt.Println("Error: Last name is required")
		return
	}

	fmt.Print("Enter Role (admin/teacher/parent, default admin): ")
	roleStr, _ := reader.ReadString('\n')
	role := model.Role(strings.ToLower(strings.TrimSpace(roleStr)))
	if role == "" {
		role = model.RoleAdmin
	}
	if !role.Valid() {
		fmt.Println("Error: Role must be admin, teacher or parent")
		return
	}

	// The PIN is the only credential, so it is read without echo.
	fmt.Print("Enter 4-digit PIN: ")
	bytePin, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Println("Error reading PIN")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	u, err := userService.Create(ctx, model.SaveUserRequest{
		FirstName: first,
		LastName:  last,
		Role:      role,
		PIN:       strings.TrimSpace(string(bytePin)),
	})
	if err != nil {
		var ae *apperror.Error
		switch {
		case errors.As(err, &ae) && ae.Kind == apperror.KindValidation:
			fmt.Printf("Error: %s\n", ae.Message)
		case errors.Is(err, apperror.ErrConflict):
			fmt.Println("Error: That PIN is already in use")
		default:
			log.Fatal().Err(err).Msg("Failed to create user")
		}
		return
	}

	fmt.Printf("\nSuccess! %s '%s' created with ID: %s\n", u.Role, u.FullName(), u.ID)
}
