package domain

import "github.com/google/uuid"

type Role string

const (
	RoleStaff      Role = "staff"
	RoleDoctor     Role = "doctor"
	RolePatient    Role = "patient"
	RolePharmacist Role = "pharmacist"
	// Системный актор для фоновых операций (sweeper, слушатель событий)
	RoleSystem Role = "system"
)

// Явный контекст вызывающего, передается в каждую операцию ядра
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name,omitempty"`
	Role Role      `json:"role"`
}

func (a Actor) Is(roles ...Role) bool {
	for _, role := range roles {
		if a.Role == role {
			return true
		}
	}
	return false
}

func (a Actor) Reference() Reference {
	return Reference{ID: a.ID, Display: a.Name}
}

func SystemActor() Actor {
	return Actor{ID: uuid.Nil, Name: "system", Role: RoleSystem}
}
