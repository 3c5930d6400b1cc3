package adapters

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"

	"cargohold/pkg/domain"
)

func TestNewRegistersEveryLeaf(t *testing.T) {
	a := newTestAdapters(t, 0)
	want := []string{
		domain.LabelArtifact,
		domain.LabelArtifactIDGroup,
		domain.LabelArtifactTag,
		domain.LabelGenericArtifactCoordinates,
		domain.LabelMavenArtifactCoordinates,
		domain.LabelNugetArtifactCoordinates,
		domain.LabelRawArtifactCoordinates,
		domain.LabelRemoteArtifact,
	}
	if diff := cmp.Diff(want, a.Registry.Labels()); diff != "" {
		t.Fatalf("labels mismatch:\n%s", diff)
	}
	d, ok := a.Registry.ForType(reflect.TypeFor[*domain.MavenArtifactCoordinates]())
	if !ok || d.Labels[0] != domain.LabelMavenArtifactCoordinates {
		t.Fatalf("maven descriptor not found by type: %+v", d)
	}
	if _, ok := a.Registry.ForLabel("UNKNOWN"); ok {
		t.Fatalf("unexpected descriptor for unknown label")
	}
	if a.Artifacts.MaxDepth() != DefaultMaxHierarchyDepth {
		t.Fatalf("expected default depth, got %d", a.Artifacts.MaxDepth())
	}
}

func TestRegistryRejectsAmbiguousWiring(t *testing.T) {
	tag := TagAdapter{}.Descriptor()
	cases := map[string][]Descriptor{
		"two labels":      {{Name: "x", Labels: []string{"A", "B"}, Type: reflect.TypeFor[*domain.Artifact]()}},
		"no label":        {{Name: "x", Type: reflect.TypeFor[*domain.Artifact]()}},
		"no type":         {{Name: "x", Labels: []string{"A"}}},
		"duplicate label": {tag, {Name: "other", Labels: tag.Labels, Type: reflect.TypeFor[*domain.Artifact]()}},
		"duplicate type":  {tag, {Name: "other", Labels: []string{"OTHER"}, Type: tag.Type}},
	}
	for name, descs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(descs...)
			if !errors.Is(err, domain.ErrWiring) {
				t.Fatalf("expected ErrWiring, got %v", err)
			}
			var we *domain.WiringError
			if !errors.As(err, &we) || we.Adapter == "" {
				t.Fatalf("expected a WiringError naming the adapter, got %#v", err)
			}
		})
	}
}

func TestNegativeDepthIsAWiringError(t *testing.T) {
	if _, err := New(Options{MaxHierarchyDepth: -1}); !errors.Is(err, domain.ErrWiring) {
		t.Fatalf("expected ErrWiring, got %v", err)
	}
}

func TestHierarchyRejectsDuplicateMembers(t *testing.T) {
	raw, err := bind[domain.ArtifactCoordinates](leaf[*domain.RawArtifactCoordinates](rawLayout()))
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	root, err := bind[domain.ArtifactCoordinates](leaf[*domain.GenericArtifactCoordinates](GenericCoordinatesAdapter{}))
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	_, err = NewHierarchy(HierarchyConfig[domain.ArtifactCoordinates]{
		Name:     "dup",
		Inherit:  OutStep(domain.EdgeCoordinatesInheritGeneric),
		Root:     root,
		RootPlan: GenericCoordinatesAdapter{}.plan,
		Join:     func(domain.ArtifactCoordinates, domain.ArtifactCoordinates) error { return nil },
		Members:  []Variant[domain.ArtifactCoordinates]{raw, raw},
	})
	if !errors.Is(err, domain.ErrWiring) {
		t.Fatalf("expected ErrWiring, got %v", err)
	}
}

func TestSelectVariantReportsAmbiguity(t *testing.T) {
	raw, _ := bind[domain.ArtifactCoordinates](leaf[*domain.RawArtifactCoordinates](rawLayout()))
	again := raw
	again.desc.Labels = []string{"RAW_AGAIN"}
	_, err := selectVariant("coords", []Variant[domain.ArtifactCoordinates]{raw, again}, domain.ArtifactCoordinates(domain.NewRawCoordinates("x")))
	if !errors.Is(err, domain.ErrWiring) {
		t.Fatalf("expected ErrWiring for two accepting members, got %v", err)
	}
	_, err = selectVariant("coords", []Variant[domain.ArtifactCoordinates]{raw}, domain.ArtifactCoordinates(domain.NewMavenCoordinates("g", "a", "1", "", "")))
	if !errors.Is(err, domain.ErrStructuralMismatch) {
		t.Fatalf("expected ErrStructuralMismatch, got %v", err)
	}
}

func TestDefaultIsBuiltOnce(t *testing.T) {
	first, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	second, _ := Default()
	if first != second {
		t.Fatalf("expected the same adapter set")
	}
}

func TestTagAdapterUsesNameAsIdentity(t *testing.T) {
	plan, err := TagAdapter{}.Unfold(&domain.ArtifactTag{Name: "latest"})
	if err != nil {
		t.Fatalf("unfold: %v", err)
	}
	if plan.UUID != "latest" || plan.Label != domain.LabelArtifactTag {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if _, err := (TagAdapter{}).Unfold(&domain.ArtifactTag{}); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty tag, got %v", err)
	}
}
