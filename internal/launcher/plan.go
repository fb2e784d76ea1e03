package launcher

import (
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
	"github.com/noshadows/soundmachine/internal/errors"
)

// WorkerSpec is one worker resolved from the configuration.
type WorkerSpec struct {
	Name    string
	Session string
	Argv    []string
	// LogFile is absolute; background mode appends output to it.
	LogFile string
}

// Plan is everything a launch will start, in start order.
type Plan struct {
	Profile string
	WorkDir string
	Workers []WorkerSpec
}

// Sessions returns the session names of the plan's workers.
func (p *Plan) Sessions() []string {
	names := make([]string, len(p.Workers))
	for i, w := range p.Workers {
		names[i] = w.Session
	}
	return names
}

// BuildPlan resolves profile into worker specs rooted at workDir. Patterns
// restrict the plan to workers whose name matches any of them; no patterns
// selects every worker of the profile.
func (l *Launcher) BuildPlan(profile, workDir string, patterns []string) (*Plan, error) {
	if profile == "" {
		profile = l.cfg.Launcher.Profile
	}
	prof, ok := l.cfg.Profiles[profile]
	if !ok {
		return nil, errors.NewNotFoundError("profile", profile).WithCause(errors.ErrUnknownProfile)
	}

	match, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Profile: profile, WorkDir: workDir}
	for _, pw := range prof.Workers {
		if !match(pw.Name) {
			continue
		}
		spec, err := l.workerSpec(pw.Name, workDir, pw.Args)
		if err != nil {
			return nil, err
		}
		plan.Workers = append(plan.Workers, spec)
	}

	if len(patterns) > 0 && len(plan.Workers) == 0 {
		return nil, errors.NewNotFoundError("worker", fmt.Sprintf("%v in profile %s", patterns, profile)).
			WithCause(errors.ErrUnknownWorker)
	}
	return plan, nil
}

// SelectWorkers resolves every configured worker matching patterns, with no
// profile flags. Stop and status use it to address workers independently of
// the profile they were started with.
func (l *Launcher) SelectWorkers(workDir string, patterns []string) ([]WorkerSpec, error) {
	match, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}

	var specs []WorkerSpec
	for _, name := range l.cfg.WorkerNames() {
		if !match(name) {
			continue
		}
		spec, err := l.workerSpec(name, workDir, nil)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}

	if len(patterns) > 0 && len(specs) == 0 {
		return nil, errors.NewNotFoundError("worker", fmt.Sprint(patterns)).WithCause(errors.ErrUnknownWorker)
	}
	return specs, nil
}

func (l *Launcher) workerSpec(name, workDir string, args []string) (WorkerSpec, error) {
	wc, ok := l.cfg.Workers[name]
	if !ok {
		return WorkerSpec{}, errors.NewNotFoundError("worker", name).WithCause(errors.ErrUnknownWorker)
	}

	var argv []string
	if len(wc.Command) > 0 {
		argv = append(argv, wc.Command...)
	} else {
		argv = append(argv, l.executable, wc.Subcommand)
		if l.configFile != "" {
			argv = append(argv, "--config", l.configFile)
		}
	}
	argv = append(argv, args...)

	logFile := wc.LogFile
	if !filepath.IsAbs(logFile) {
		logFile = filepath.Join(workDir, logFile)
	}

	return WorkerSpec{
		Name:    name,
		Session: wc.Session,
		Argv:    argv,
		LogFile: logFile,
	}, nil
}

func compilePatterns(patterns []string) (func(string) bool, error) {
	if len(patterns) == 0 {
		return func(string) bool { return true }, nil
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, errors.NewValidationError("invalid worker pattern").
				WithField("pattern").WithValue(p).WithCause(err)
		}
		globs = append(globs, g)
	}

	return func(name string) bool {
		for _, g := range globs {
			if g.Match(name) {
				return true
			}
		}
		return false
	}, nil
}
