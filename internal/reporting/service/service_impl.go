package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comptoir/internal/authorization"
	"github.com/smallbiznis/comptoir/internal/clock"
	"github.com/smallbiznis/comptoir/internal/config"
	identitydomain "github.com/smallbiznis/comptoir/internal/identity/domain"
	orderdomain "github.com/smallbiznis/comptoir/internal/order/domain"
	paymentdomain "github.com/smallbiznis/comptoir/internal/payment/domain"
	"github.com/smallbiznis/comptoir/internal/reporting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxDayBuckets   = 366
	maxMonthBuckets = 120
)

var paymentMethods = []paymentdomain.Method{
	paymentdomain.MethodCash,
	paymentdomain.MethodMobileMoney,
	paymentdomain.MethodCard,
}

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Authz  authorization.Service
	Config config.Config
	Clock  clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	authz authorization.Service
	loc   *time.Location
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reporting.service"),
		repo:  p.Repo,
		authz: p.Authz,
		loc:   p.Config.Location(),
		clock: p.Clock,
	}
}

func (s *Service) KPIs(ctx context.Context, actor identitydomain.Principal, req domain.PeriodRequest) (*domain.KPIs, error) {
	from, to, err := s.period(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	scope := tenantScope(actor, req.TenantID)

	totals, err := s.repo.OrderTotals(ctx, s.db, scope, from, to)
	if err != nil {
		return nil, err
	}
	cost, err := s.repo.CostOfGoods(ctx, s.db, scope, from, to)
	if err != nil {
		return nil, err
	}
	collected, err := s.repo.Collected(ctx, s.db, scope, from, to)
	if err != nil {
		return nil, err
	}
	supplies, err := s.repo.SuppliesTotal(ctx, s.db, scope, calendarDay(from, s.loc), calendarDay(to, s.loc))
	if err != nil {
		return nil, err
	}

	kpis := &domain.KPIs{
		From:          from,
		To:            to,
		Revenue:       totals.Revenue,
		OrderCount:    totals.OrderCount,
		Collected:     collected,
		Receivables:   totals.Receivables,
		CostOfGoods:   cost,
		GrossMargin:   totals.Revenue - cost,
		SuppliesTotal: supplies,
	}
	if totals.OrderCount > 0 {
		kpis.AverageBasket = totals.Revenue / totals.OrderCount
	}

	s.log.Debug("kpis computed",
		zap.String("actor_id", actor.LogActor()),
		zap.String("tenant_id", actor.LogTenant()),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int64("orders", totals.OrderCount),
	)
	return kpis, nil
}

func (s *Service) SalesByProduct(ctx context.Context, actor identitydomain.Principal, req domain.PeriodRequest) ([]domain.ProductSales, error) {
	from, to, err := s.period(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.SalesByProduct(ctx, s.db, tenantScope(actor, req.TenantID), from, to)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.ProductSales{}
	}
	return rows, nil
}

// RevenueSeries buckets revenue and collections by business-local day or
// month. Every bucket of the period is present, empty ones at zero.
func (s *Service) RevenueSeries(ctx context.Context, actor identitydomain.Principal, req domain.PeriodRequest) (*domain.RevenueSeries, error) {
	granularity := req.Granularity
	if granularity == "" {
		granularity = domain.GranularityDay
	}
	if granularity != domain.GranularityDay && granularity != domain.GranularityMonth {
		return nil, domain.ErrInvalidGranularity
	}
	from, to, err := s.period(ctx, actor, req)
	if err != nil {
		return nil, err
	}

	keys := bucketKeys(from.In(s.loc), to.In(s.loc), granularity)
	limit := maxDayBuckets
	if granularity == domain.GranularityMonth {
		limit = maxMonthBuckets
	}
	if len(keys) > limit {
		return nil, domain.ErrRangeTooLong
	}

	scope := tenantScope(actor, req.TenantID)
	sales, err := s.repo.ValidatedAmounts(ctx, s.db, scope, from, to)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.PaymentAmounts(ctx, s.db, scope, from, to)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(keys))
	points := make([]domain.SeriesPoint, len(keys))
	for i, key := range keys {
		index[key] = i
		points[i].Period = key
	}
	for _, row := range sales {
		if i, ok := index[bucketKey(row.At.In(s.loc), granularity)]; ok {
			points[i].Revenue += row.Amount
		}
	}
	for _, row := range payments {
		if i, ok := index[bucketKey(row.At.In(s.loc), granularity)]; ok {
			points[i].Collected += row.Amount
		}
	}
	for i := range points {
		points[i].Shortfall = points[i].Revenue - points[i].Collected
	}

	return &domain.RevenueSeries{Granularity: granularity, Points: points}, nil
}

// CollectionsByMethod always lists every payment method, unused ones at zero.
func (s *Service) CollectionsByMethod(ctx context.Context, actor identitydomain.Principal, req domain.PeriodRequest) ([]domain.MethodTotal, error) {
	from, to, err := s.period(ctx, actor, req)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.CollectionsByMethod(ctx, s.db, tenantScope(actor, req.TenantID), from, to)
	if err != nil {
		return nil, err
	}
	byMethod := make(map[string]domain.MethodTotal, len(rows))
	for _, row := range rows {
		byMethod[row.Method] = row
	}
	out := make([]domain.MethodTotal, 0, len(paymentMethods))
	for _, method := range paymentMethods {
		row, ok := byMethod[string(method)]
		if !ok {
			row = domain.MethodTotal{Method: string(method)}
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *Service) SearchTransactions(ctx context.Context, actor identitydomain.Principal, filter domain.TransactionFilter) (*domain.TransactionPage, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectReport, authorization.ActionRead); err != nil {
		return nil, err
	}
	switch orderdomain.Status(filter.Status) {
	case "", orderdomain.StatusPending, orderdomain.StatusValidated, orderdomain.StatusCancelled:
	default:
		return nil, domain.ErrInvalidStatus
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, domain.ErrInvalidRange
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.PageSize <= 0:
		filter.PageSize = defaultPageSize
	case filter.PageSize > maxPageSize:
		filter.PageSize = maxPageSize
	}

	rows, total, err := s.repo.SearchTransactions(ctx, s.db, tenantScope(actor, filter.TenantID), filter)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Transaction{}
	}
	return &domain.TransactionPage{
		Transactions: rows,
		Pagination: domain.PageMeta{
			Total:      total,
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalPages: int((total + int64(filter.PageSize) - 1) / int64(filter.PageSize)),
		},
	}, nil
}

// period authorizes the read and resolves the bounds. Both bounds or none:
// none means today in the business timezone.
func (s *Service) period(ctx context.Context, actor identitydomain.Principal, req domain.PeriodRequest) (time.Time, time.Time, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectReport, authorization.ActionRead); err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, to := req.From, req.To
	switch {
	case from.IsZero() && to.IsZero():
		now := s.clock.Now().In(s.loc)
		from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
		to = from.AddDate(0, 0, 1).Add(-time.Nanosecond)
	case from.IsZero() || to.IsZero():
		return time.Time{}, time.Time{}, domain.ErrMissingBound
	case from.After(to):
		return time.Time{}, time.Time{}, domain.ErrInvalidRange
	}
	return from.UTC(), to.UTC(), nil
}

func tenantScope(actor identitydomain.Principal, tenantID snowflake.ID) domain.Scope {
	return func(column string) func(*gorm.DB) *gorm.DB {
		base := authorization.ScopeColumn(actor, column)
		if !actor.IsAdmin() || tenantID == 0 {
			return base
		}
		return func(db *gorm.DB) *gorm.DB {
			return base(db).Where(column+" = ?", tenantID)
		}
	}
}

func bucketKey(t time.Time, granularity domain.Granularity) string {
	if granularity == domain.GranularityMonth {
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

func bucketKeys(from, to time.Time, granularity domain.Granularity) []string {
	var keys []string
	if granularity == domain.GranularityMonth {
		cursor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, from.Location())
		for !cursor.After(to) && len(keys) <= maxMonthBuckets {
			keys = append(keys, bucketKey(cursor, granularity))
			cursor = cursor.AddDate(0, 1, 0)
		}
		return keys
	}
	cursor := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	for !cursor.After(to) && len(keys) <= maxDayBuckets {
		keys = append(keys, bucketKey(cursor, granularity))
		cursor = cursor.AddDate(0, 0, 1)
	}
	return keys
}

// calendarDay matches how supply dates are stored: the business-local day
// as UTC midnight.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
