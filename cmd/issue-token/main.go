package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/service"
)

// issue-token mints a bearer token for local testing. Production tokens come
// from the identity provider.
func main() {
	var (
		subject string
		role    string
	)
	flag.StringVar(&subject, "sub", "", "Subject ID (student or staff identifier)")
	flag.StringVar(&role, "role", string(model.RoleStudent), "Role: student, proctor or admin")
	flag.Parse()

	r := model.Role(role)
	if subject == "" || !r.Valid() {
		fmt.Println("Usage: issue-token -sub <id> [-role student|proctor|admin]")
		os.Exit(2)
	}

	token, err := service.NewAuthService(config.Load()).IssueToken(subject, r)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
