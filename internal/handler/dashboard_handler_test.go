package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lms-api/internal/dto"
	"github.com/noah-isme/lms-api/internal/models"
)

type fakeDashboardSrv struct {
	adminResp      *dto.AdminStatsResponse
	adminErr       error
	adminHit       bool
	instructorResp *dto.InstructorDashboardResponse
	instructorHit  bool
	lastInstructor string
}

func (f *fakeDashboardSrv) Admin(context.Context) (*dto.AdminStatsResponse, bool, error) {
	return f.adminResp, f.adminHit, f.adminErr
}

func (f *fakeDashboardSrv) Instructor(_ context.Context, instructorID string) (*dto.InstructorDashboardResponse, bool, error) {
	f.lastInstructor = instructorID
	return f.instructorResp, f.instructorHit, nil
}

func TestDashboardHandlerAdminReportsCacheHit(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{
		adminResp: &dto.AdminStatsResponse{TotalEnrollments: 12},
		adminHit:  true,
	})

	c, w := newGinContext(http.MethodGet, "/admin/stats", nil)
	handler.Admin(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	var stats dto.AdminStatsResponse
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 12, stats.TotalEnrollments)
}

func TestDashboardHandlerAdminError(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{adminErr: errors.New("boom")})

	c, w := newGinContext(http.MethodGet, "/admin/stats", nil)
	handler.Admin(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDashboardHandlerInstructorUsesCaller(t *testing.T) {
	srv := &fakeDashboardSrv{instructorResp: &dto.InstructorDashboardResponse{InstructorID: "inst-1", TotalCourses: 3}}
	handler := NewDashboardHandler(srv)

	c, w := newGinContext(http.MethodGet, "/instructor/dashboard", nil)
	withUser(c, "inst-1", models.RoleInstructor)
	handler.Instructor(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inst-1", srv.lastInstructor)
	assert.Equal(t, false, decodeEnvelope(t, w).Meta["cache_hit"])
}

func TestDashboardHandlerInstructorRequiresUser(t *testing.T) {
	handler := NewDashboardHandler(&fakeDashboardSrv{})

	c, w := newGinContext(http.MethodGet, "/instructor/dashboard", nil)
	handler.Instructor(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
