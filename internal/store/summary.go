package store

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lawdesk/internal/records"
)

// summaryMonths is the number of trailing calendar months in a summary.
const summaryMonths = 6

type MonthBucket struct {
	Month    string  `json:"month"`
	Label    string  `json:"label"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
}

type Summary struct {
	TotalRevenue  float64       `json:"totalRevenue"`
	TotalExpenses float64       `json:"totalExpenses"`
	Balance       float64       `json:"balance"`
	MonthlyData   []MonthBucket `json:"monthlyData"`
}

// FinancialSummary totals revenues and expenses of the scope and buckets them
// into the trailing six months, oldest first.
func (s *Store) FinancialSummary(ctx context.Context, scope Scope) Summary {
	var (
		revenues []records.Revenue
		expenses []records.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		revenues = s.Revenues(scope).list(gctx, scope)
		return nil
	})
	g.Go(func() error {
		expenses = s.Expenses(scope).list(gctx, scope)
		return nil
	})
	_ = g.Wait()

	return summarize(revenues, expenses, s.clock())
}

func summarize(revenues []records.Revenue, expenses []records.Expense, now time.Time) Summary {
	var sum Summary

	first := time.Date(now.Year(), now.Month()-(summaryMonths-1), 1, 0, 0, 0, 0, time.UTC)
	sum.MonthlyData = make([]MonthBucket, summaryMonths)
	for i := range sum.MonthlyData {
		m := first.AddDate(0, i, 0)
		sum.MonthlyData[i] = MonthBucket{Month: m.Format("2006-01"), Label: m.Format("Jan")}
	}

	for _, r := range revenues {
		sum.TotalRevenue += r.Amount
		if b := bucketFor(sum.MonthlyData, r.Date); b != nil {
			b.Revenue += r.Amount
		}
	}
	for _, e := range expenses {
		sum.TotalExpenses += e.Amount
		if b := bucketFor(sum.MonthlyData, e.Date); b != nil {
			b.Expenses += e.Amount
		}
	}
	sum.Balance = sum.TotalRevenue - sum.TotalExpenses
	return sum
}

func bucketFor(buckets []MonthBucket, date string) *MonthBucket {
	for i := range buckets {
		if strings.HasPrefix(date, buckets[i].Month) {
			return &buckets[i]
		}
	}
	return nil
}

type CaseStats struct {
	Total      int `json:"total"`
	InProgress int `json:"inProgress"`
	Completed  int `json:"completed"`
}

type EventStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
}

type MemberStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

type Stats struct {
	Cases     CaseStats   `json:"cases"`
	Events    EventStats  `json:"events"`
	Documents int         `json:"documents"`
	Lawyers   MemberStats `json:"lawyers"`
	Employees MemberStats `json:"employees"`
}

// GeneralStats counts the records of the scope by status.
func (s *Store) GeneralStats(ctx context.Context, scope Scope) Stats {
	var (
		stats     Stats
		cases     []records.Case
		events    []records.CalendarEvent
		documents []records.Document
		lawyers   []records.Lawyer
		employees []records.Employee
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { cases = s.Cases(scope).list(gctx, scope); return nil })
	g.Go(func() error { events = s.Events(scope).list(gctx, scope); return nil })
	g.Go(func() error { documents = s.Documents(scope).list(gctx, scope); return nil })
	g.Go(func() error { lawyers = s.Lawyers(scope).list(gctx, scope); return nil })
	g.Go(func() error { employees = s.Employees(scope).list(gctx, scope); return nil })
	_ = g.Wait()

	for _, c := range cases {
		stats.Cases.Total++
		switch c.Status {
		case records.CaseInProgress:
			stats.Cases.InProgress++
		case records.CaseCompleted:
			stats.Cases.Completed++
		}
	}
	for _, e := range events {
		stats.Events.Total++
		switch e.Status {
		case records.EventPending:
			stats.Events.Pending++
		case records.EventCompleted:
			stats.Events.Completed++
		}
	}
	stats.Documents = len(documents)
	for _, l := range lawyers {
		countMember(&stats.Lawyers, l.Status)
	}
	for _, e := range employees {
		countMember(&stats.Employees, e.Status)
	}
	return stats
}

func countMember(m *MemberStats, status records.MemberStatus) {
	m.Total++
	if status == records.StatusActive {
		m.Active++
	} else {
		m.Inactive++
	}
}
