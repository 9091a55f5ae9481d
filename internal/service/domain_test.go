package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
)

// =========================================================================
// LIST TESTS
// =========================================================================

func TestDomainList_CapsAndOrders(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 120; i++ {
		d := &model.PackageDomain{
			PackageID:                "pkg1",
			PointsTo:                 model.PointsToPackage,
			FullyQualifiedDomainName: fmt.Sprintf("d%03d.tscircuit.app", i),
			CreatorAccountID:         "acct1",
			VerificationToken:        "secret",
			CreatedAt:                base.Add(time.Duration(i) * time.Minute),
		}
		if err := fx.store.CreateDomain(ctx, d); err != nil {
			t.Fatalf("seeding domain %d: %v", i, err)
		}
	}

	got, err := fx.domains.List(ctx, DomainQuery{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("List() returned %d, want 100", len(got))
	}
	if got[0].FullyQualifiedDomainName != "d119.tscircuit.app" {
		t.Errorf("first = %q, want the newest", got[0].FullyQualifiedDomainName)
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].CreatedAt.After(got[i].CreatedAt) {
			t.Fatalf("not strictly newest first at %d: %v then %v", i, got[i-1].CreatedAt, got[i].CreatedAt)
		}
	}
}

func TestDomainList_Filters(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	seed := []model.PackageDomain{
		{PackageID: "p1", PackageReleaseID: "r1", PackageBuildID: "b1", PointsTo: model.PointsToPackageRelease, FullyQualifiedDomainName: "a.example.com"},
		{PackageID: "p1", PackageReleaseID: "r2", PackageBuildID: "b2", PointsTo: model.PointsToPackageRelease, FullyQualifiedDomainName: "b.example.com"},
		{PackageID: "p2", PointsTo: model.PointsToPackage, FullyQualifiedDomainName: "c.example.com"},
	}
	for i := range seed {
		if err := fx.store.CreateDomain(ctx, &seed[i]); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	tests := []struct {
		name string
		q    DomainQuery
		want int
	}{
		{"no filter", DomainQuery{}, 3},
		{"by package", DomainQuery{PackageID: "p1"}, 2},
		{"by release", DomainQuery{PackageReleaseID: "r2"}, 1},
		{"package and build", DomainQuery{PackageID: "p1", PackageBuildID: "b1"}, 1},
		{"contradictory", DomainQuery{PackageID: "p2", PackageReleaseID: "r1"}, 0},
		{"unknown id", DomainQuery{PackageID: "nope"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fx.domains.List(ctx, tt.q)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List() returned %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestDomainList_MalformedFilter(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.domains.List(context.Background(), DomainQuery{PackageReleaseID: "x' OR 1=1 --"})

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperror.CodeInvalidQueryParams {
		t.Fatalf("error = %v, want invalid_query_params", err)
	}
	if appErr.Field != "package_release_id" {
		t.Errorf("Field = %q, want package_release_id", appErr.Field)
	}
}

// =========================================================================
// CREATE / UPDATE TESTS
// =========================================================================

func TestDomainCreate(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	alice := fx.account(t, "alice")
	pkg := fx.pkg(t, alice, "usb-c")

	d, err := fx.domains.Create(ctx, alice.ID, DomainInput{
		PackageID:                pkg.ID,
		PointsTo:                 model.PointsToPackageRelease,
		PackageReleaseID:         pkg.LatestPackageReleaseID,
		FullyQualifiedDomainName: "USB-C.Alice.tscircuit.app.",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if d.FullyQualifiedDomainName != "usb-c.alice.tscircuit.app" {
		t.Errorf("fqdn = %q, want lowercased without trailing dot", d.FullyQualifiedDomainName)
	}
	release, _ := fx.store.GetReleaseByID(ctx, pkg.LatestPackageReleaseID)
	if d.PackageBuildID != release.LatestPackageBuildID {
		t.Errorf("PackageBuildID = %q, want the release's latest build %q", d.PackageBuildID, release.LatestPackageBuildID)
	}

	stored, _ := fx.store.GetDomainByID(ctx, d.ID)
	if stored.VerificationToken == "" || stored.CreatorAccountID != alice.ID {
		t.Errorf("stored private fields = (%q, %q), want set", stored.VerificationToken, stored.CreatorAccountID)
	}

	_, err = fx.domains.Create(ctx, alice.ID, DomainInput{
		PackageID: pkg.ID, PointsTo: model.PointsToPackage, FullyQualifiedDomainName: "usb-c.alice.tscircuit.app",
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate fqdn error = %v, want ErrConflict", err)
	}
}

func TestDomainCreate_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	alice := fx.account(t, "alice")
	pkg := fx.pkg(t, alice, "usb-c")
	other := fx.pkg(t, alice, "led")

	tests := []struct {
		name  string
		in    DomainInput
		field string
	}{
		{"bad hostname", DomainInput{PackageID: pkg.ID, PointsTo: model.PointsToPackage, FullyQualifiedDomainName: "no_underscores.example.com"}, "fully_qualified_domain_name"},
		{"single label", DomainInput{PackageID: pkg.ID, PointsTo: model.PointsToPackage, FullyQualifiedDomainName: "localhost"}, "fully_qualified_domain_name"},
		{"unknown target", DomainInput{PackageID: pkg.ID, PointsTo: "somewhere", FullyQualifiedDomainName: "a.example.com"}, "points_to"},
		{"release missing", DomainInput{PackageID: pkg.ID, PointsTo: model.PointsToPackageRelease, FullyQualifiedDomainName: "a.example.com"}, "package_release_id"},
		{"release of other package", DomainInput{PackageID: pkg.ID, PointsTo: model.PointsToPackageRelease, PackageReleaseID: other.LatestPackageReleaseID, FullyQualifiedDomainName: "a.example.com"}, "package_release_id"},
		{"tag missing", DomainInput{PackageID: pkg.ID, PointsTo: model.PointsToPackageReleaseWithTag, FullyQualifiedDomainName: "a.example.com"}, "tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.domains.Create(ctx, alice.ID, tt.in)
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", appErr.Field, tt.field)
			}
		})
	}
}

func TestDomainUpdate_Repoints(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	alice := fx.account(t, "alice")
	bob := fx.account(t, "bob")
	pkg := fx.pkg(t, alice, "usb-c")

	d, err := fx.domains.Create(ctx, alice.ID, DomainInput{
		PackageID:                pkg.ID,
		PointsTo:                 model.PointsToPackageRelease,
		PackageReleaseID:         pkg.LatestPackageReleaseID,
		FullyQualifiedDomainName: "usb-c.example.com",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := fx.domains.Update(ctx, bob.ID, d.ID, DomainInput{PointsTo: model.PointsToPackage}); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("non-owner Update() error = %v, want ErrForbidden", err)
	}

	updated, err := fx.domains.Update(ctx, alice.ID, d.ID, DomainInput{PointsTo: model.PointsToPackageReleaseWithTag, Tag: "stable"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Tag != "stable" || updated.PackageReleaseID != "" || updated.PackageBuildID != "" {
		t.Errorf("updated = %+v, want tag only", updated)
	}

	// Omitted fields keep their stored values.
	kept, err := fx.domains.Update(ctx, alice.ID, d.ID, DomainInput{})
	if err != nil {
		t.Fatalf("empty Update() error = %v", err)
	}
	if kept.PointsTo != model.PointsToPackageReleaseWithTag || kept.Tag != "stable" {
		t.Errorf("kept = %+v, want unchanged target", kept)
	}
}
