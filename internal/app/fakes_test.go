package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/models"
)

// memStore — хранилище в памяти для тестов движка.
type memStore struct {
	mu          sync.Mutex
	classes     map[int64]models.ClassSection
	students    map[int64]models.Student
	enrollments []models.Enrollment
	attendance  map[string]models.AttendanceRecord
	payments    []models.Payment
	failSave    map[int64]bool
	saves       int

	classIDsAsked []int64 // последний запрос ListClassesByIDs
}

func newMemStore() *memStore {
	return &memStore{
		classes:    map[int64]models.ClassSection{},
		students:   map[int64]models.Student{},
		attendance: map[string]models.AttendanceRecord{},
		failSave:   map[int64]bool{},
	}
}

func (s *memStore) addStudent(id int64, name, code, contact string) {
	s.students[id] = models.Student{ID: id, Name: name, Code: code, GuardianContact: contact}
}

func (s *memStore) enroll(studentID, classID int64, at time.Time) {
	st := s.students[studentID]
	s.enrollments = append(s.enrollments, models.Enrollment{
		ID: int64(len(s.enrollments) + 1), StudentID: studentID, ClassID: classID, EnrolledAt: at,
		Status: models.EnrollmentActive, StudentName: st.Name, GuardianContact: st.GuardianContact,
	})
}

func attKey(classID, studentID int64, d time.Time) string {
	return fmt.Sprintf("%s:%d", sessionKey(classID, d), studentID)
}

func (s *memStore) GetClass(_ context.Context, id int64) (*models.ClassSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memStore) GetActiveEnrollments(_ context.Context, classID int64) ([]models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if e.ClassID == classID && e.Status == models.EnrollmentActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) GetAttendance(_ context.Context, classID int64, date time.Time) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AttendanceRecord
	for _, r := range s.attendance {
		if r.ClassID == classID && r.Date.Equal(date) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) SaveAttendance(_ context.Context, rec models.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.failSave[rec.StudentID] {
		return errors.New("connection reset")
	}
	rec.Saved = true
	s.attendance[attKey(rec.ClassID, rec.StudentID, rec.Date)] = rec
	return nil
}

func (s *memStore) FindStudentByCode(_ context.Context, code string) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.students {
		if st.Code == code {
			st := st
			return &st, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetStudent(_ context.Context, id int64) (*models.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *memStore) ListClasses(_ context.Context, activeOnly bool) ([]models.ClassSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ClassSection
	for _, c := range s.classes {
		if !activeOnly || c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) ListClassesByIDs(_ context.Context, ids []int64) ([]models.ClassSection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classIDsAsked = append([]int64(nil), ids...)
	var out []models.ClassSection
	for _, id := range ids {
		if c, ok := s.classes[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) ListActiveEnrollments(_ context.Context) ([]models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if e.Status == models.EnrollmentActive {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListEnrollments(_ context.Context, from, to time.Time) ([]models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if !e.EnrolledAt.Before(from) && e.EnrolledAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) ListAttendance(_ context.Context, classID int64, from, to time.Time, _ *time.Location) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AttendanceRecord
	for _, r := range s.attendance {
		if (classID == 0 || r.ClassID == classID) && !r.Date.Before(from) && r.Date.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ListPayments(_ context.Context, from, to time.Time) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if !p.PaidAt.Before(from) && p.PaidAt.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) GetPayments(_ context.Context, studentID *int64) ([]models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if studentID == nil || p.StudentID == *studentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) CreatePayment(_ context.Context, p models.Payment) (models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = int64(len(s.payments) + 1)
	s.payments = append(s.payments, p)
	return p, nil
}

func (s *memStore) UpdatePayment(_ context.Context, id int64, p models.Payment) (models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.payments {
		if s.payments[i].ID == id {
			p.ID = id
			p.ReceiptNo = s.payments[i].ReceiptNo
			s.payments[i] = p
			return p, nil
		}
	}
	return models.Payment{}, apperr.ErrNotFound
}

// memChannel записывает отправленные сообщения.
type memChannel struct {
	mu   sync.Mutex
	sent map[string][]string
	fail map[string]bool
}

func newMemChannel() *memChannel {
	return &memChannel{sent: map[string][]string{}, fail: map[string]bool{}}
}

func (c *memChannel) Send(_ context.Context, contact, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail[contact] {
		return errors.New("Bad Request: chat not found")
	}
	c.sent[contact] = append(c.sent[contact], text)
	return nil
}

func (c *memChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		n += len(m)
	}
	return n
}
