package domain

import (
	"context"
	"time"
)

// RuleService is the set of rule directory and rule file commands. The backend owns the
// rule storage, the frontend only forwards the calls.
type RuleService interface {
	GetRuleDirs(ctx context.Context) ([]*RuleDir, error)
	UpsertRuleDir(ctx context.Context, dir RuleDirInput) (int, error)
	GetRuleFiles(ctx context.Context) ([]*RuleFile, error)
	UpsertRuleFile(ctx context.Context, file RuleFileInput) (int, error)
	DeleteRuleFile(ctx context.Context, id int) error
	GetRuleFileContent(ctx context.Context, id int) (string, error)
	UpdateRuleFileContent(ctx context.Context, id int, content string) error
}

// RuleDir is a folder of rule files. Dirs holds nested folders when the backend returns a tree.
type RuleDir struct {
	ID        int
	Name      string
	ParentID  *int
	CreatedAt time.Time
	UpdatedAt time.Time
	Dirs      []*RuleDir
}

// RuleFile is a rule file entry without its content.
type RuleFile struct {
	ID        int
	Name      string
	ParentID  *int
	IsDir     bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RuleDirInput creates a rule directory when ID is nil and updates it otherwise.
type RuleDirInput struct {
	ID       *int
	Name     string
	ParentID *int
}

// RuleFileInput creates a rule file when ID is nil and updates it otherwise.
type RuleFileInput struct {
	ID       *int
	Name     string
	IsDir    bool
	ParentID *int
}
