package memory

import "github.com/upb/multicloud-dashboard/repositories"

// NewRepositories builds the default in-memory repository set
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Principals:  NewPrincipalRepository(),
		Credentials: NewCredentialRepository(),
		Tx:          NewTransactionManager(),
	}
}
