package masterdata

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/siteledger/internal/events"
	"github.com/odyssey-erp/siteledger/internal/ledger"
	"github.com/odyssey-erp/siteledger/internal/shared"
)

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry shared.AuditEntry) error
}

// Service coordinates master data and the cascade delete orchestrator.
type Service struct {
	repo      Repository
	poster    *ledger.Poster
	publisher events.Publisher
	audit     AuditRecorder
	logger    *slog.Logger
}

// NewService builds Service. audit may be nil.
func NewService(repo Repository, poster *ledger.Poster, publisher events.Publisher, audit AuditRecorder, logger *slog.Logger) *Service {
	if poster == nil {
		poster = ledger.NewPoster(nil)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, poster: poster, publisher: publisher, audit: audit, logger: logger}
}

// CreateClient records a client.
func (s *Service) CreateClient(ctx context.Context, input ClientInput) (Client, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.Validate(input); err != nil {
		return Client{}, err
	}
	client := Client{Name: input.Name, Phone: strings.TrimSpace(input.Phone)}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertClient(ctx, client)
		client.ID = id
		return err
	})
	if err != nil {
		return Client{}, err
	}
	s.notify(ctx, events.New(events.TopicClients, events.ClientAdded, client))
	return client, nil
}

// CreateVendor records a vendor and seeds its ledger with the opening balance.
func (s *Service) CreateVendor(ctx context.Context, input VendorInput) (Vendor, ledger.Entry, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.Validate(input); err != nil {
		return Vendor{}, ledger.Entry{}, err
	}
	vendor := Vendor{Name: input.Name, Phone: strings.TrimSpace(input.Phone), OpeningBalance: shared.RoundMoney(input.OpeningBalance)}
	var seed ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertVendor(ctx, vendor)
		if err != nil {
			return err
		}
		vendor.ID = id
		seed, err = s.poster.Post(ctx, tx.Ledger(), ledger.SeedPosting(ledger.KindVendor, id, vendor.OpeningBalance))
		return err
	})
	if err != nil {
		return Vendor{}, ledger.Entry{}, err
	}
	s.notify(ctx,
		events.New(events.TopicVendors, events.VendorAdded, vendor),
		ledger.Notification(seed),
	)
	return vendor, seed, nil
}

// CreateProject records a project for an existing client and seeds its ledger with the advance.
func (s *Service) CreateProject(ctx context.Context, input ProjectInput) (Project, ledger.Entry, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.Validate(input); err != nil {
		return Project{}, ledger.Entry{}, err
	}
	project := Project{ClientID: input.ClientID, Name: input.Name, Advance: shared.RoundMoney(input.Advance)}
	var seed ledger.Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := lockExisting(ctx, tx, tableClients, "client", project.ClientID); err != nil {
			return err
		}
		id, err := tx.InsertProject(ctx, project)
		if err != nil {
			return err
		}
		project.ID = id
		seed, err = s.poster.Post(ctx, tx.Ledger(), ledger.SeedPosting(ledger.KindProject, id, project.Advance))
		return err
	})
	if err != nil {
		return Project{}, ledger.Entry{}, err
	}
	s.notify(ctx,
		events.New(events.TopicProjects, events.ProjectAdded, project),
		ledger.Notification(seed),
	)
	return project, seed, nil
}

// CreateLabor records a labor entry. Labor is not ledgered.
func (s *Service) CreateLabor(ctx context.Context, input LaborInput) (Labor, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.Validate(input); err != nil {
		return Labor{}, err
	}
	labor := Labor{Name: input.Name, Phone: strings.TrimSpace(input.Phone), Salary: shared.RoundMoney(input.Salary)}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertLabor(ctx, labor)
		labor.ID = id
		return err
	})
	if err != nil {
		return Labor{}, err
	}
	s.notify(ctx, events.New(events.TopicLabor, events.LaborAdded, labor))
	return labor, nil
}

// LinkVendor associates a vendor with a project. Linking twice is a no-op.
func (s *Service) LinkVendor(ctx context.Context, projectID, vendorID int64) error {
	if err := validateIDs(map[string]int64{"project_id": projectID, "vendor_id": vendorID}); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := lockExisting(ctx, tx, tableProjects, "project", projectID); err != nil {
			return err
		}
		if err := lockExisting(ctx, tx, tableVendors, "vendor", vendorID); err != nil {
			return err
		}
		_, err := tx.LinkVendor(ctx, projectID, vendorID)
		return err
	})
}

// UnlinkVendor removes a project-vendor association.
func (s *Service) UnlinkVendor(ctx context.Context, projectID, vendorID int64) error {
	if err := validateIDs(map[string]int64{"project_id": projectID, "vendor_id": vendorID}); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.UnlinkVendor(ctx, projectID, vendorID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: project %d is not linked to vendor %d", shared.ErrNotFound, projectID, vendorID)
		}
		return nil
	})
}

// DeleteVendor removes a vendor with its invoices, ledger, purchase expenses and project links.
func (s *Service) DeleteVendor(ctx context.Context, id int64) (DeleteReport, error) {
	report, err := s.runCascade(ctx, "vendor", id, func(ctx context.Context, c *cascade) error {
		return c.vendor(ctx, id)
	})
	if err != nil {
		return DeleteReport{}, err
	}
	s.notify(ctx,
		events.New(events.TopicVendors, events.VendorDeleted, report),
		events.New(events.VendorTopic(id), events.VendorDeleted, report),
	)
	return report, nil
}

// DeleteProject removes a project with its ledger, payments, expenses and vendor links.
func (s *Service) DeleteProject(ctx context.Context, id int64) (DeleteReport, error) {
	report, err := s.runCascade(ctx, "project", id, func(ctx context.Context, c *cascade) error {
		return c.project(ctx, id)
	})
	if err != nil {
		return DeleteReport{}, err
	}
	s.notify(ctx,
		events.New(events.TopicProjects, events.ProjectDeleted, report),
		events.New(events.ProjectTopic(id), events.ProjectDeleted, report),
	)
	return report, nil
}

// DeleteClient removes a client together with every project it owns.
func (s *Service) DeleteClient(ctx context.Context, id int64) (DeleteReport, error) {
	var projectIDs []int64
	report, err := s.runCascade(ctx, "client", id, func(ctx context.Context, c *cascade) error {
		var err error
		projectIDs, err = c.client(ctx, id)
		return err
	})
	if err != nil {
		return DeleteReport{}, err
	}
	ns := []events.Notification{events.New(events.TopicClients, events.ClientDeleted, report)}
	for _, pid := range projectIDs {
		ns = append(ns, events.New(events.ProjectTopic(pid), events.ProjectDeleted, map[string]int64{"id": pid, "client_id": id}))
	}
	s.notify(ctx, ns...)
	return report, nil
}

// DeleteLabor removes a labor record and its payments.
func (s *Service) DeleteLabor(ctx context.Context, id int64) (DeleteReport, error) {
	report, err := s.runCascade(ctx, "labor", id, func(ctx context.Context, c *cascade) error {
		return c.labor(ctx, id)
	})
	if err != nil {
		return DeleteReport{}, err
	}
	s.notify(ctx, events.New(events.TopicLabor, events.LaborDeleted, report))
	return report, nil
}

func (s *Service) runCascade(ctx context.Context, entity string, id int64, fn func(context.Context, *cascade) error) (DeleteReport, error) {
	if id <= 0 {
		return DeleteReport{}, shared.NewValidationError("id", "must be a positive integer")
	}
	var report DeleteReport
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		report = DeleteReport{Entity: entity, ID: id, Removed: map[string]int64{}}
		return fn(ctx, &cascade{tx: tx, report: &report})
	})
	if err != nil {
		s.logger.Warn("cascade delete aborted", slog.String("entity", entity), slog.Int64("id", id), slog.Any("error", err))
		return DeleteReport{}, err
	}
	s.logger.Info("cascade delete committed", slog.String("entity", entity), slog.Int64("id", id), slog.Any("removed", report.Removed))
	if s.audit != nil {
		meta := make(map[string]any, len(report.Removed))
		for table, n := range report.Removed {
			meta[table] = n
		}
		if err := s.audit.Record(ctx, shared.AuditEntry{Action: "delete", Entity: entity, EntityID: id, Meta: meta}); err != nil {
			s.logger.Warn("audit cascade delete", slog.String("entity", entity), slog.Int64("id", id), slog.Any("error", err))
		}
	}
	return report, nil
}

func (s *Service) notify(ctx context.Context, ns ...events.Notification) {
	if err := events.PublishAll(ctx, s.publisher, ns...); err != nil {
		s.logger.Warn("masterdata notification failed", slog.Any("error", err))
	}
}

// ListClients returns every client.
func (s *Service) ListClients(ctx context.Context) ([]Client, error) {
	return s.repo.ListClients(ctx)
}

// GetClient returns one client.
func (s *Service) GetClient(ctx context.Context, id int64) (Client, error) {
	if id <= 0 {
		return Client{}, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.GetClient(ctx, id)
}

// ListVendors returns every vendor.
func (s *Service) ListVendors(ctx context.Context) ([]Vendor, error) {
	return s.repo.ListVendors(ctx)
}

// GetVendor returns one vendor.
func (s *Service) GetVendor(ctx context.Context, id int64) (Vendor, error) {
	if id <= 0 {
		return Vendor{}, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.GetVendor(ctx, id)
}

// ListProjects returns projects, optionally restricted to one client.
func (s *Service) ListProjects(ctx context.Context, clientID int64) ([]Project, error) {
	return s.repo.ListProjects(ctx, clientID)
}

// GetProject returns one project.
func (s *Service) GetProject(ctx context.Context, id int64) (Project, error) {
	if id <= 0 {
		return Project{}, shared.NewValidationError("id", "must be a positive integer")
	}
	return s.repo.GetProject(ctx, id)
}

// ListLabor returns every labor record.
func (s *Service) ListLabor(ctx context.Context) ([]Labor, error) {
	return s.repo.ListLabor(ctx)
}

func validateIDs(ids map[string]int64) error {
	fields := map[string]string{}
	for name, id := range ids {
		if id <= 0 {
			fields[name] = "must be a positive integer"
		}
	}
	if len(fields) > 0 {
		return &shared.ValidationError{Fields: fields}
	}
	return nil
}
