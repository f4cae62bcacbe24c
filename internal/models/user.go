package models

// Role — роль оператора центра. Все проверки прав идут через switch по Role.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// CanTakeAttendance — отмечать посещаемость и принимать QR-сканы.
func (r Role) CanTakeAttendance() bool {
	switch r {
	case RoleAdmin, RoleTeacher:
		return true
	case RoleStudent:
		return false
	}
	return false
}

func (r Role) CanManagePayments() bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleTeacher, RoleStudent:
		return false
	}
	return false
}

func (r Role) CanSendNotifications() bool {
	switch r {
	case RoleAdmin, RoleTeacher:
		return true
	case RoleStudent:
		return false
	}
	return false
}

type User struct {
	ID         int64
	TelegramID int64
	Name       string
	Role       Role
}
