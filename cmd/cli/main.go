package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Saurav-Nepal/sekuwa-kerner/internal/config"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/models"
	"github.com/Saurav-Nepal/sekuwa-kerner/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const usage = "expected 'add-user' or 'migrate' subcommand"

func main() {
	addUserCmd := flag.NewFlagSet("add-user", flag.ExitOnError)
	name := addUserCmd.String("name", "", "Display name for the new user")
	email := addUserCmd.String("email", "", "Login email for the new user")
	phone := addUserCmd.String("phone", "", "Optional 10-digit phone number")
	password := addUserCmd.String("password", "", "Password for the new user")
	role := addUserCmd.String("role", string(models.RoleAdmin), "admin or customer")

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	switch os.Args[1] {
	case "add-user":
		addUserCmd.Parse(os.Args[2:])
		if *name == "" || *email == "" || *password == "" {
			fmt.Println("name, email and password are required")
			addUserCmd.PrintDefaults()
			os.Exit(1)
		}
		r := models.Role(*role)
		if r != models.RoleAdmin && r != models.RoleCustomer {
			log.Fatalf("Unknown role %q", *role)
		}
		createUser(cfg.DBPath, &models.User{Name: *name, Email: *email, Phone: *phone, Role: r}, *password)
	case "migrate":
		openStore(cfg.DBPath).Close()
		fmt.Println("Migrations applied.")
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

// openStore opens the database and applies pending migrations, so the CLI
// can run before the server ever has.
func openStore(path string) *store.Store {
	db, err := store.NewStore(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func createUser(dbPath string, u *models.User, password string) {
	db := openStore(dbPath)
	defer db.Close()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	u.Password = string(hashedPassword)

	id, err := db.CreateUser(context.Background(), u)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Printf("User '%s' (%s) created with id %d.\n", u.Email, u.Role, id)
}
