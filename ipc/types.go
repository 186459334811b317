package ipc

import (
	"time"

	"github.com/devya-app/devya/domain"
)

// Command names understood by the backend.
const (
	cmdCheckCAInstalled      = "check_ca_installed"
	cmdInstallCA             = "install_ca"
	cmdStartProxy            = "start_proxy"
	cmdStopProxy             = "stop_proxy"
	cmdCheckProxyRunning     = "check_proxy_running"
	cmdCheckPort             = "check_port"
	cmdGetRuleDirs           = "get_rule_dirs"
	cmdUpsertRuleDir         = "upsert_rule_dir"
	cmdGetRuleFiles          = "get_rule_files"
	cmdUpsertRuleFile        = "upsert_rule_file"
	cmdDeleteRuleFile        = "delete_rule_file"
	cmdGetRuleFileContent    = "get_rule_file_content"
	cmdUpdateRuleFileContent = "update_rule_file_content"
)

type errorBody struct {
	Error string `json:"error"`
}

type startProxyArgs struct {
	Port    uint16 `json:"port"`
	Channel string `json:"channel"`
}

type portArgs struct {
	Port uint16 `json:"port"`
}

type idArgs struct {
	ID int `json:"id"`
}

type ruleFileContentArgs struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

type proxyStatus struct {
	Port         *uint16 `json:"port,omitempty"`
	RunningCount uint    `json:"running_count"`
}

func (s proxyStatus) toDomain() domain.ProxyStatus {
	return domain.ProxyStatus{Port: s.Port, RunningCount: s.RunningCount}
}

type ruleDir struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	ParentID  *int       `json:"parentId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Dirs      []*ruleDir `json:"dirs,omitempty"`
}

func (d *ruleDir) toDomain() *domain.RuleDir {
	dir := &domain.RuleDir{
		ID:        d.ID,
		Name:      d.Name,
		ParentID:  d.ParentID,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, child := range d.Dirs {
		dir.Dirs = append(dir.Dirs, child.toDomain())
	}
	return dir
}

type ruleDirInput struct {
	ID       *int   `json:"id,omitempty"`
	Name     string `json:"name"`
	ParentID *int   `json:"parentId,omitempty"`
}

type ruleFile struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	ParentID  *int      `json:"parentId,omitempty"`
	IsDir     bool      `json:"isDir"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (f *ruleFile) toDomain() *domain.RuleFile {
	return &domain.RuleFile{
		ID:        f.ID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		IsDir:     f.IsDir,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

type ruleFileInput struct {
	ID       *int   `json:"id,omitempty"`
	Name     string `json:"name"`
	IsDir    bool   `json:"isDir"`
	ParentID *int   `json:"parentId,omitempty"`
}

// fragment is a captured fragment as pushed on a channel.
type fragment struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (f fragment) toDomain() domain.CapturedFragment {
	return domain.CapturedFragment{
		ID:      f.ID,
		Kind:    domain.FragmentKind(f.Type),
		Content: f.Content,
	}
}

type event struct {
	Event string `json:"event"`
}
