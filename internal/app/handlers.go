package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Spok95/edu-center-bot/internal/apperr"
	"github.com/Spok95/edu-center-bot/internal/attendance"
	"github.com/Spok95/edu-center-bot/internal/metrics"
	"github.com/Spok95/edu-center-bot/internal/models"
	"github.com/Spok95/edu-center-bot/internal/notify"
	"github.com/Spok95/edu-center-bot/internal/report"
	"github.com/Spok95/edu-center-bot/internal/tuition"
)

type recordView struct {
	StudentID int64  `json:"student_id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Note      string `json:"note,omitempty"`
	Saved     bool   `json:"saved"`
}

type sessionView struct {
	ClassID  int64        `json:"class_id"`
	Date     string       `json:"date"`
	Present  int          `json:"present"`
	Absent   int          `json:"absent"`
	Unmarked int          `json:"unmarked"`
	Records  []recordView `json:"records"`
}

func viewOf(l *attendance.Ledger) sessionView {
	c := l.Counts()
	v := sessionView{
		ClassID:  l.ClassID(),
		Date:     l.Date().Format("2006-01-02"),
		Present:  c.Present,
		Absent:   c.Absent,
		Unmarked: c.Unmarked,
		Records:  []recordView{},
	}
	for _, r := range l.Records() {
		v.Records = append(v.Records, recordView{
			StudentID: r.StudentID, Name: r.StudentName, State: r.State.String(), Note: r.Note, Saved: r.Saved,
		})
	}
	return v
}

type batchView struct {
	Sent         int           `json:"sent"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Deduplicated int           `json:"deduplicated"`
	Failures     []failureView `json:"failures"`
}

type failureView struct {
	StudentID int64  `json:"student_id"`
	Reason    string `json:"reason"`
}

func batchOf(res notify.BatchResult) batchView {
	v := batchView{Sent: res.Sent, Failed: res.Failed, Skipped: res.Skipped, Deduplicated: res.Deduplicated, Failures: []failureView{}}
	for _, f := range res.Failures {
		v.Failures = append(v.Failures, failureView{StudentID: f.StudentID, Reason: f.Reason})
	}
	return v
}

// sessionParams — {classID}/{date} из пути.
func (a *api) sessionParams(r *http.Request) (int64, time.Time, error) {
	classID, err := strconv.ParseInt(chi.URLParam(r, "classID"), 10, 64)
	if err != nil || classID <= 0 {
		return 0, time.Time{}, apperr.Invalid("class_id", "must be a positive integer")
	}
	date, err := time.ParseInLocation("2006-01-02", chi.URLParam(r, "date"), a.loc)
	if err != nil {
		return 0, time.Time{}, apperr.Invalid("date", "expected YYYY-MM-DD")
	}
	return classID, date, nil
}

func (a *api) openSession(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	l, err := a.engine.OpenSession(r.Context(), classID, date)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(l))
}

func (a *api) getSession(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	l, err := a.engine.Session(r.Context(), classID, date)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(l))
}

func (a *api) closeSession(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	lost, err := a.engine.CloseSession(r.Context(), classID, date)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"discarded": lost})
}

func (a *api) checkin(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	var body struct {
		Code string `json:"code"`
	}
	if err := decode(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	studentID, err := a.engine.CheckIn(r.Context(), classID, date, body.Code)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": studentID, "state": models.Present.String()})
}

func (a *api) markAllPresent(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	if err := a.engine.MarkAllPresent(r.Context(), classID, date); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) toggle(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	studentID, err := pathID(r, "studentID")
	if err != nil {
		a.fail(w, err)
		return
	}
	st, err := a.engine.Toggle(r.Context(), classID, date, studentID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": studentID, "state": st.String()})
}

func (a *api) setNote(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	studentID, err := pathID(r, "studentID")
	if err != nil {
		a.fail(w, err)
		return
	}
	var body struct {
		Note string `json:"note"`
	}
	if err := decode(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	if err := a.engine.SetNote(r.Context(), classID, date, studentID, body.Note); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) saveSession(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	saved, err := a.engine.SaveSession(r.Context(), classID, date)
	l, _ := a.engine.Session(r.Context(), classID, date)
	pending := 0
	if l != nil {
		pending = len(l.PendingChanges())
	}
	if err != nil && saved == 0 {
		a.fail(w, err)
		return
	}
	body := map[string]any{"saved": saved, "pending": pending}
	if err != nil {
		// частичный успех: часть записей осталась несохранённой
		body["error"] = err.Error()
		writeJSON(w, http.StatusMultiStatus, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) notifyAbsences(w http.ResponseWriter, r *http.Request) {
	classID, date, err := a.sessionParams(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	var body struct {
		Template string `json:"template"`
	}
	if err := decodeOptional(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.engine.NotifyAbsences(r.Context(), classID, date, body.Template)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchOf(res))
}

func (a *api) unpaid(w http.ResponseWriter, r *http.Request) {
	asOf, err := a.asOf(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	totals, err := a.engine.UnpaidReport(r.Context(), asOf)
	if err != nil {
		a.fail(w, err)
		return
	}
	if totals == nil {
		totals = []tuition.StudentTotal{}
	}
	writeJSON(w, http.StatusOK, totals)
}

func (a *api) tuitionReminders(w http.ResponseWriter, r *http.Request) {
	asOf, err := a.asOf(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	var body struct {
		Template string `json:"template"`
	}
	if err := decodeOptional(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	res, err := a.engine.NotifyTuitionDue(r.Context(), asOf, body.Template)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchOf(res))
}

type paymentBody struct {
	StudentID int64     `json:"student_id"`
	ClassID   int64     `json:"class_id"`
	Amount    int64     `json:"amount"`
	Method    string    `json:"method"`
	Status    string    `json:"status"`
	PaidAt    time.Time `json:"paid_at"`
	ReceiptNo string    `json:"receipt_no"`
	Note      string    `json:"note"`
	PeriodNo  *int      `json:"period_no"`
}

func (b paymentBody) input() tuition.PaymentInput {
	return tuition.PaymentInput{
		StudentID: b.StudentID,
		ClassID:   b.ClassID,
		Amount:    b.Amount,
		Method:    models.PaymentMethod(b.Method),
		Status:    models.PaymentStatus(b.Status),
		PaidAt:    b.PaidAt,
		ReceiptNo: b.ReceiptNo,
		Note:      b.Note,
		PeriodNo:  b.PeriodNo,
	}
}

func (a *api) listPayments(w http.ResponseWriter, r *http.Request) {
	var studentID *int64
	if s := r.URL.Query().Get("student_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			a.fail(w, apperr.Invalid("student_id", "must be an integer"))
			return
		}
		studentID = &id
	}
	list, err := a.engine.Payments(r.Context(), studentID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if list == nil {
		list = []models.Payment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) createPayment(w http.ResponseWriter, r *http.Request) {
	var body paymentBody
	if err := decode(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	p, err := a.engine.CreatePayment(r.Context(), body.input())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *api) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "paymentID")
	if err != nil {
		a.fail(w, err)
		return
	}
	var body paymentBody
	if err := decode(r, &body); err != nil {
		a.fail(w, err)
		return
	}
	p, err := a.engine.UpdatePayment(r.Context(), id, body.input())
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) attendanceReport(w http.ResponseWriter, r *http.Request) {
	a.serveReport(w, r, "Chuyên cần", a.engine.AttendanceReport)
}

func (a *api) financeReport(w http.ResponseWriter, r *http.Request) {
	a.serveReport(w, r, "Học phí", a.engine.FinanceReport)
}

// serveReport: ?from=&to=&granularity=&class_id=&by_class=1&format=xlsx
func (a *api) serveReport(w http.ResponseWriter, r *http.Request, title string, build func(ctx context.Context, q ReportQuery) ([]report.Bucket, error)) {
	q, err := a.reportQuery(r)
	if err != nil {
		a.fail(w, err)
		return
	}
	buckets, err := build(r.Context(), q)
	if err != nil {
		a.fail(w, err)
		return
	}
	if r.URL.Query().Get("format") != "xlsx" {
		if buckets == nil {
			buckets = []report.Bucket{}
		}
		writeJSON(w, http.StatusOK, buckets)
		return
	}

	var buf bytes.Buffer
	if err := report.ExportXLSX(&buf, title+" "+q.Granularity.String(), buckets); err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="report.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

func (a *api) reportQuery(r *http.Request) (ReportQuery, error) {
	qs := r.URL.Query()
	var q ReportQuery
	var err error
	if q.From, err = time.ParseInLocation("2006-01-02", qs.Get("from"), a.loc); err != nil {
		return q, apperr.Invalid("from", "expected YYYY-MM-DD")
	}
	if q.To, err = time.ParseInLocation("2006-01-02", qs.Get("to"), a.loc); err != nil {
		return q, apperr.Invalid("to", "expected YYYY-MM-DD")
	}
	if q.Granularity, err = report.ParseGranularity(qs.Get("granularity")); err != nil {
		return q, apperr.Invalid("granularity", err.Error())
	}
	if s := qs.Get("class_id"); s != "" {
		if q.ClassID, err = strconv.ParseInt(s, 10, 64); err != nil {
			return q, apperr.Invalid("class_id", "must be an integer")
		}
	}
	q.ByClass = qs.Get("by_class") == "1" || qs.Get("by_class") == "true"
	return q, nil
}

func (a *api) asOf(r *http.Request) (time.Time, error) {
	s := r.URL.Query().Get("as_of")
	if s == "" {
		return a.engine.opts.Now().In(a.loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, a.loc)
	if err != nil {
		return time.Time{}, apperr.Invalid("as_of", "expected YYYY-MM-DD")
	}
	return t, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Invalid("body", "invalid json")
	}
	return nil
}

// decodeOptional — пустое тело допустимо, в том числе chunked без длины.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Invalid("body", "invalid json")
}

// fail переводит таксономию ошибок в HTTP-статусы.
func (a *api) fail(w http.ResponseWriter, err error) {
	reason := apperr.Reason(err)
	status := http.StatusInternalServerError
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrNotInRoster):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrNoContact):
		status = http.StatusUnprocessableEntity
	case apperr.IsProvider(err):
		status = http.StatusServiceUnavailable
	default:
		reason = "Internal"
	}
	if status >= http.StatusInternalServerError {
		metrics.HandlerErrors.Inc()
		a.log.Error("request failed", zap.String("reason", reason), zap.Error(err))
	}
	writeError(w, status, reason, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
