package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"stride/api/internal/ai"
	"stride/api/internal/audit"
	"stride/api/internal/auth"
	"stride/api/internal/authpw"
	"stride/api/internal/cache"
	"stride/api/internal/config"
	"stride/api/internal/email"
	"stride/api/internal/integration"
	"stride/api/internal/logging"
	"stride/api/internal/metrics"
	"stride/api/internal/oauth"
	"stride/api/internal/rbac"
	"stride/api/internal/report"
	"stride/api/internal/search"
	"stride/api/internal/session"
	"stride/api/internal/store"
	"stride/api/internal/util"
)

const hookTimeout = 30 * time.Second

type dataStore interface {
	Ping(context.Context) error

	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	UpdateUser(context.Context, store.User) error
	UpdateUserRole(context.Context, string, string) error
	SetUserStatus(context.Context, string, string, string) (bool, error)
	UpdateUserPassword(context.Context, string, string) error
	MarkEmailVerified(context.Context, string) error
	DeleteUser(context.Context, string) (bool, error)
	ListUsers(context.Context, store.UserFilter) ([]store.User, error)
	UserStats(context.Context) (store.UserStats, error)
	SaveUserToken(context.Context, store.UserToken) error
	ConsumeUserToken(context.Context, string, string, time.Time) (string, error)
	GetAccount(context.Context, string, string) (store.Account, error)
	LinkAccount(context.Context, store.Account) error

	CreateDepartment(context.Context, store.Department) error
	UpdateDepartment(context.Context, store.Department) error
	DeleteDepartment(context.Context, string) (bool, error)
	GetDepartment(context.Context, string) (store.Department, error)
	ListDepartments(context.Context) ([]store.Department, error)

	CreateTeam(context.Context, store.Team) error
	UpdateTeam(context.Context, store.Team) error
	DeleteTeam(context.Context, string) (bool, error)
	GetTeam(context.Context, string) (store.Team, error)
	ListTeams(context.Context, store.TeamFilter) ([]store.Team, error)
	AddTeamMember(context.Context, string, string) (bool, error)
	RemoveTeamMember(context.Context, string, string) (bool, error)

	CreateProject(context.Context, store.Project) error
	UpdateProject(context.Context, store.Project) error
	SetProjectStatus(context.Context, string, string, string) (bool, error)
	DeleteProject(context.Context, string) (bool, error)
	GetProject(context.Context, string) (store.Project, error)
	ListProjects(context.Context, store.ProjectFilter) ([]store.Project, error)
	ProjectStats(context.Context) (map[string]int, error)

	CreateSprint(context.Context, store.Sprint) error
	UpdateSprint(context.Context, store.Sprint) error
	SetSprintStatus(context.Context, string, string, string) (bool, error)
	DeleteSprint(context.Context, string) (bool, error)
	GetSprint(context.Context, string) (store.Sprint, error)
	ListSprints(context.Context, store.SprintFilter) ([]store.Sprint, error)
	CompleteSprint(context.Context, string) (int, bool, error)

	CreateTask(context.Context, store.Task) error
	UpdateTask(context.Context, store.Task) error
	SetTaskStatus(context.Context, string, string) error
	DeleteTask(context.Context, string) (bool, error)
	GetTask(context.Context, string) (store.Task, error)
	ListTasks(context.Context, store.TaskFilter) ([]store.Task, error)
	TaskStatusCounts(context.Context, store.TaskFilter) (map[string]int, error)

	CreateTimesheet(context.Context, store.Timesheet) error
	GetTimesheet(context.Context, string) (store.Timesheet, error)
	ListTimesheets(context.Context, store.TimesheetFilter) ([]store.Timesheet, error)
	ReviewTimesheet(context.Context, store.TimesheetReview) (bool, error)
	CountTimesheets(context.Context, string) (int, error)

	CreatePTORequest(context.Context, store.PTORequest) error
	GetPTORequest(context.Context, string) (store.PTORequest, error)
	ListPTORequests(context.Context, store.PTOFilter) ([]store.PTORequest, error)
	ReviewPTORequest(context.Context, store.PTOReview) (bool, error)
	UsedPTODays(context.Context, string, int) (int, error)
	CountPTORequests(context.Context, string) (int, error)

	CreateAppraisal(context.Context, store.Appraisal) error
	GetAppraisal(context.Context, string) (store.Appraisal, error)
	ListAppraisals(context.Context, store.AppraisalFilter) ([]store.Appraisal, error)
	SubmitAppraisal(context.Context, store.Appraisal) (bool, error)
	AcknowledgeAppraisal(context.Context, string, time.Time) (bool, error)

	UpsertIntegration(context.Context, store.Integration) (store.Integration, error)
	GetIntegration(context.Context, string) (store.Integration, error)
	ListIntegrations(context.Context) ([]store.Integration, error)
	DeleteIntegration(context.Context, string) (bool, error)
	RecordIntegrationCheck(context.Context, string, string, time.Time) error
	GetSettings(context.Context) (store.OrganizationSettings, error)
	SaveSettings(context.Context, store.OrganizationSettings, string) error

	InsertAuditEntry(context.Context, audit.Entry) error
	ListAuditEntries(context.Context, audit.Filter) ([]audit.Entry, error)
}

// SearchIndex is implemented by *search.Service.
type SearchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexProject(ctx context.Context, record search.ProjectRecord) error
	IndexTask(ctx context.Context, record search.TaskRecord) error
	IndexUser(ctx context.Context, record search.UserRecord) error
	Remove(ctx context.Context, kind search.ResultType, id string) error
	ReindexAll(ctx context.Context) (int, error)
}

// Mailer is implemented by *email.Service.
type Mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, token string) error
	SendPasswordResetEmail(to, userName, token string) error
	SendTimesheetReviewed(to string, review email.TimesheetReview) error
	SendPTODecision(to string, decision email.PTODecision) error
	SendTimesheetReminder(to, userName string, weekStart time.Time) error
}

// IntegrationRunner is implemented by *integration.Service.
type IntegrationRunner interface {
	Test(ctx context.Context, integration store.Integration) error
	Broadcast(ctx context.Context, integrations []store.Integration, event integration.Event) int
}

// PDFRenderer is implemented by *report.PDFRenderer.
type PDFRenderer interface {
	PDF(ctx context.Context, html, title string) (report.Result, error)
}

// OAuthProvider is implemented by *oauth.Google.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (oauth.Identity, error)
}

// Deps wires the service. Only Config and Store are required; the rest fall back
// to in-process or disabled implementations.
type Deps struct {
	Config       *config.Config
	Store        dataStore
	Sessions     session.Store
	Cache        cache.Cache
	Search       SearchIndex
	Mailer       Mailer
	Integrations IntegrationRunner
	AI           ai.Provider
	PDF          PDFRenderer
	OAuth        OAuthProvider
	Archiver     *audit.Archiver
	Metrics      *metrics.Metrics
	Logger       *logrus.Logger
}

type Service struct {
	cfg          *config.Config
	store        dataStore
	sessions     session.Store
	cache        cache.Cache
	search       SearchIndex
	mailer       Mailer
	integrations IntegrationRunner
	ai           ai.Provider
	pdf          PDFRenderer
	oauth        OAuthProvider
	archiver     *audit.Archiver
	passwords    *authpw.Service
	recorder     *audit.Recorder
	metrics      *metrics.Metrics
	logger       *logrus.Logger
	now          func() time.Time
	// cacheGen moves on every invalidation so a read that raced a mutation
	// does not leave its stale view behind.
	cacheGen atomic.Uint64
}

func New(deps Deps) *Service {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	s := &Service{
		cfg:          cfg,
		store:        deps.Store,
		sessions:     deps.Sessions,
		cache:        deps.Cache,
		search:       deps.Search,
		mailer:       deps.Mailer,
		integrations: deps.Integrations,
		ai:           deps.AI,
		pdf:          deps.PDF,
		oauth:        deps.OAuth,
		archiver:     deps.Archiver,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		now:          time.Now,
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.sessions == nil {
		s.sessions = session.NewMemoryStore(cfg.RefreshTokenTTL(), cfg.AccessTokenTTL())
	}
	if s.cache == nil {
		s.cache = cache.NewLRU(cfg.ViewCacheSize, cfg.CacheTTL())
	}
	if s.search == nil {
		s.search = search.NewService(nil, nil, s.logger)
	}
	if s.mailer == nil {
		s.mailer = email.NewService(email.Config{BaseURL: cfg.AppBaseURL})
	}
	if s.integrations == nil {
		s.integrations = integration.NewService(integration.NewGitConnector(), integration.NewWebhookClient(0), s.logger)
	}
	if s.pdf == nil {
		s.pdf = report.NewPDFRenderer(cfg.ChromePath)
	}
	s.passwords = authpw.NewService(deps.Store, cfg.BcryptCost)
	s.recorder = audit.NewRecorder(deps.Store, s.logger, s.metrics.AuditWriteFailures, cfg.AuditTimeout())
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

func (s *Service) SMTPConfigured() bool { return s.mailer.IsConfigured() }

// =============================================================================
// Sessions
// =============================================================================

// Tokens is a freshly issued access and refresh token pair.
type Tokens struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	User         UserView     `json:"user"`
	Session      auth.Session `json:"-"`
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Tokens, error) {
	now := s.now()
	current := auth.Session{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      rbac.Normalize(user.Role),
		JTI:       util.NewID("jti"),
		ExpiresAt: now.Add(s.cfg.AccessTokenTTL()),
	}
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), current, now)
	if err != nil {
		return Tokens{}, err
	}

	refresh := util.NewToken()
	if err := s.sessions.SaveRefresh(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTokenTTL())); err != nil {
		return Tokens{}, fmt.Errorf("save refresh token: %w", err)
	}

	return Tokens{
		AccessToken:  token,
		RefreshToken: refresh,
		ExpiresAt:    current.ExpiresAt,
		User:         userView(user),
		Session:      current,
	}, nil
}

// SessionFromToken validates an access token, rejects revoked ids and reloads the
// user so role changes and deactivation apply immediately.
func (s *Service) SessionFromToken(ctx context.Context, token string) (*auth.Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.sessions.IsAccessRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, auth.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if user.Status != store.UserActive {
		return nil, auth.ErrInvalidToken
	}

	return &auth.Session{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      rbac.Normalize(user.Role),
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Refresh rotates a refresh token. The old token is consumed even when the user
// turns out to be inactive.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, auth.ErrInvalidToken
	}
	userID, err := s.sessions.ConsumeRefresh(ctx, auth.HashToken(refreshToken))
	if errors.Is(err, session.ErrNotFound) {
		return Tokens{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Tokens{}, fmt.Errorf("consume refresh token: %w", err)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Tokens{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Tokens{}, err
	}
	if user.Status != store.UserActive {
		return Tokens{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, user)
}

// Logout revokes the access token id until it would have expired and drops the
// refresh token. Either may be absent.
func (s *Service) Logout(ctx context.Context, current *auth.Session, refreshToken string) error {
	if current != nil && current.JTI != "" {
		if err := s.sessions.RevokeAccess(ctx, current.JTI, current.ExpiresAt); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		return s.sessions.RevokeRefresh(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) settings(ctx context.Context) (store.OrganizationSettings, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return store.OrganizationSettings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// =============================================================================
// View cache
// =============================================================================

// cached serves a read query's view from the view cache, keyed by query name,
// actor role, actor id and the filter.
func cached[T any](ctx context.Context, s *Service, actor *auth.Session, name string, filter any, tags []string, load func(context.Context) (*T, error)) (*T, error) {
	key := name + ":" + string(actor.Role) + ":" + actor.UserID
	if filter != nil {
		raw, err := json.Marshal(filter)
		if err == nil {
			key += ":" + string(raw)
		}
	}

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var view T
		if err := json.Unmarshal(raw, &view); err == nil {
			s.metrics.CacheHitsTotal.WithLabelValues(name).Inc()
			return &view, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.WithError(err).WithField("view", name).Warn("view cache read failed")
	}
	s.metrics.CacheMissesTotal.WithLabelValues(name).Inc()

	gen := s.cacheGen.Load()
	view, err := load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"view": name, "actor_id": actor.UserID}).Error("read query failed")
		return nil, err
	}
	if s.cacheGen.Load() != gen {
		return view, nil
	}
	if raw, err := json.Marshal(view); err == nil {
		if err := s.cache.Set(ctx, key, raw, tags...); err != nil {
			s.logger.WithError(err).WithField("view", name).Warn("view cache write failed")
		}
		// An invalidation between the check and the Set may have missed this key.
		if s.cacheGen.Load() != gen {
			s.invalidate(ctx, tags...)
		}
	}
	return view, nil
}

func (s *Service) invalidate(ctx context.Context, tags ...string) {
	s.cacheGen.Add(1)
	if err := s.cache.Invalidate(ctx, tags...); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("tags", tags).Warn("view cache invalidation failed")
	}
}

func allowed(actor *auth.Session, perm rbac.Permission) bool {
	return actor != nil && rbac.IsAllowed(actor.Role, perm)
}
