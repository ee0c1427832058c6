package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/database"
	"github.com/stemsi/exstem-integrity/internal/logger"
	"github.com/stemsi/exstem-integrity/internal/repository"
	"github.com/stemsi/exstem-integrity/internal/service"
	"golang.org/x/term"
)

func main() {
	var (
		examIDStr string
		clear     bool
	)
	flag.StringVar(&examIDStr, "exam", "", "Exam ID (UUID)")
	flag.BoolVar(&clear, "clear", false, "Remove the entry token so the exam can be joined without one")
	flag.Parse()

	examID, err := uuid.Parse(examIDStr)
	if err != nil {
		fmt.Println("Error: -exam must be a valid UUID")
		os.Exit(2)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	exams := repository.NewPgStore(pool).Exams()
	exam, err := exams.GetByID(ctx, examID)
	if err != nil {
		log.Fatal().Err(err).Str("exam_id", examID.String()).Msg("Failed to load exam")
	}

	if clear {
		if err := exams.SetEntryTokenHash(ctx, examID, nil); err != nil {
			log.Fatal().Err(err).Msg("Failed to clear entry token")
		}
		fmt.Printf("Entry token removed from '%s'\n", exam.Title)
		return
	}

	// ─── CLI Input ─────────────────────────────────────────────────────
	fmt.Printf("=== Set Entry Token for '%s' ===\n", exam.Title)

	token := readSecret("Enter Token: ")
	if len(token) < 4 {
		fmt.Println("Error: Token must be at least 4 characters")
		os.Exit(1)
	}
	if readSecret("Confirm Token: ") != token {
		fmt.Println("Error: Tokens do not match")
		os.Exit(1)
	}

	hash, err := service.NewAuthService(cfg).HashSecret(token)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash token")
	}
	if err := exams.SetEntryTokenHash(ctx, examID, &hash); err != nil {
		log.Fatal().Err(err).Msg("Failed to store entry token")
	}

	fmt.Printf("\nSuccess! Entry token set for '%s' (%s)\n", exam.Title, exam.ID)
}

func readSecret(prompt string) string {
	fmt.Print(prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Newline after hidden input
	if err != nil {
		fmt.Println("Error reading input")
		os.Exit(1)
	}
	return string(b)
}
