package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fpang/qr-checkin/internal/session"
	"github.com/fpang/qr-checkin/internal/validation"
	"github.com/rs/zerolog/log"
)

// LoginRequest is the credentials body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse is the body returned by a successful login.
type AuthResponse struct {
	Token string        `json:"token"`
	Type  string        `json:"type"`
	User  *session.User `json:"user,omitempty"`
}

// Mark is one student's presence in a class session.
type Mark struct {
	UserID  int64 `json:"userId"`
	Present bool  `json:"present"`
}

// attendanceRecord is the raw class attendance row.
type attendanceRecord struct {
	StudentID int64 `json:"studentId"`
	Attended  bool  `json:"attended"`
}

// MonthlyRow is one row of the monthly course report. The backend owns the
// shape, so unknown fields are kept.
type MonthlyRow map[string]interface{}

// Login authenticates and returns the session to store. The role is
// normalized; the caller decides what to do with unknown roles.
func (c *Client) Login(ctx context.Context, email, password string) (session.State, error) {
	req := LoginRequest{Email: email, Password: password}
	if err := validation.Struct(req); err != nil {
		return session.State{}, err
	}

	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, loginPath, nil, req, &resp); err != nil {
		return session.State{}, loginError(err)
	}
	if resp.Token == "" {
		return session.State{}, &APIError{Status: http.StatusOK, Title: "Error", Message: "No se recibió token"}
	}

	st := session.State{Token: resp.Token, Role: session.NormalizeRole(resp.Type), User: resp.User}
	log.Info().Str("role", string(st.Role)).Bool("proPlan", st.ProPlan()).Msg("Logged in")
	return st, nil
}

// RegisterAttendanceViaQR marks the current user present in classID using the
// one-time token from the QR code.
func (c *Client) RegisterAttendanceViaQR(ctx context.Context, classID int64, token string) error {
	path := fmt.Sprintf("/attendance/class/%d/qr", classID)
	body := map[string]string{"token": token}
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("register attendance via QR: %w", err)
	}
	return nil
}

// SessionAttendance returns the marks already recorded for classID.
func (c *Client) SessionAttendance(ctx context.Context, classID int64) ([]Mark, error) {
	var records []attendanceRecord
	path := fmt.Sprintf("/attendance/class/%d", classID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &records); err != nil {
		return nil, fmt.Errorf("get class attendance: %w", err)
	}
	marks := make([]Mark, 0, len(records))
	for _, r := range records {
		marks = append(marks, Mark{UserID: r.StudentID, Present: r.Attended})
	}
	return marks, nil
}

// RegisterAttendance creates or updates the marks of classID.
func (c *Client) RegisterAttendance(ctx context.Context, classID int64, marks []Mark) error {
	if marks == nil {
		marks = []Mark{}
	}
	path := fmt.Sprintf("/attendance/session/%d", classID)
	if err := c.do(ctx, http.MethodPost, path, nil, marks, nil); err != nil {
		return fmt.Errorf("register attendance: %w", err)
	}
	return nil
}

// MonthlyReport returns the attendance report of courseID for a month (1-12).
func (c *Client) MonthlyReport(ctx context.Context, courseID int64, month, year int) ([]MonthlyRow, error) {
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("invalid month %d", month)
	}
	query := url.Values{
		"month": {strconv.Itoa(month)},
		"year":  {strconv.Itoa(year)},
	}
	var rows []MonthlyRow
	path := fmt.Sprintf("/attendance/course/%d/monthly", courseID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &rows); err != nil {
		return nil, fmt.Errorf("get monthly report: %w", err)
	}
	return rows, nil
}
