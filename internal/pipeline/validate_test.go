package pipeline

import (
	"strings"
	"testing"

	"github.com/hsawada/monoflow/internal/model"
)

func TestValidate_OK(t *testing.T) {
	defs := map[string]model.TaskDefinition{
		"build": {Command: "make build", DependsOnPackages: true},
		"test":  {Command: "make test", DependsOn: []string{"build"}},
	}
	if err := Validate(defs); err != nil {
		t.Fatalf("expected valid pipeline, got %v", err)
	}
}

func TestValidate_UnknownDependency(t *testing.T) {
	defs := map[string]model.TaskDefinition{
		"test": {Command: "make test", DependsOn: []string{"compile"}},
	}
	err := Validate(defs)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `unknown task type "compile"`) {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestValidate_SelfReference(t *testing.T) {
	defs := map[string]model.TaskDefinition{
		"build": {Command: "make", DependsOn: []string{"build"}},
	}
	err := Validate(defs)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "self-reference") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestValidate_Cycle(t *testing.T) {
	defs := map[string]model.TaskDefinition{
		"build": {Command: "make build", DependsOn: []string{"lint"}},
		"lint":  {Command: "make lint", DependsOn: []string{"build"}},
	}
	err := Validate(defs)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestValidate_MissingCommand(t *testing.T) {
	defs := map[string]model.TaskDefinition{"build": {}}
	err := Validate(defs)
	if err == nil {
		t.Fatal("expected error")
	}
	ve, ok := err.(*ValidationErrors)
	if !ok {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if ve.Errors[0].FieldPath != "pipeline.build.command" {
		t.Errorf("unexpected field path: %v", ve.Errors[0])
	}
}
