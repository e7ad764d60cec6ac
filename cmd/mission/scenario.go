package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChristopherRabotin/missionseq"
	"github.com/ChristopherRabotin/missionseq/bodies"
	"github.com/ChristopherRabotin/missionseq/command"
	"github.com/ChristopherRabotin/missionseq/dynamics"
	"github.com/ChristopherRabotin/missionseq/ephem"
	"github.com/ChristopherRabotin/missionseq/event"
	"github.com/ChristopherRabotin/missionseq/integrator"
	"github.com/ChristopherRabotin/missionseq/object"
	"github.com/soniakeys/meeus/v3/julian"
	"github.com/spf13/viper"
)

// scenario is the content of a scenario file.
type scenario struct {
	Mission struct {
		Name string
	}
	Propagator struct {
		Name   string
		Origin string
		Step   time.Duration
	}
	Forces struct {
		Bodies []string // third bodies
		Jn     uint8
		Drag   bool
	}
	Burns      []burnSection
	Spacecraft []spacecraftSection
	Events     []eventSection
	Commands   []commandSection
}

type burnSection struct {
	Name      string
	Thruster  string // catalog name, else Thrust and Isp
	Thrust    float64
	Isp       float64
	Direction string
	Target    string
}

type spacecraftSection struct {
	Name  string
	Body  string
	Epoch string // RFC 3339 or Julian date
	State []float64
	Orbit []float64 // sma, ecc, inc, raan, aop, ta (km and degrees) in place of State
	TLE   []string
	Dry   float64
	Fuel  float64
	Cd    float64
	Area  float64
}

type eventSection struct {
	Name      string
	Targets   []string
	Body      string
	Functions []string // apsis, umbra, penumbra, altitude:<km>
	Inactive  bool
}

type commandSection struct {
	Type         string
	Participants []string
	Duration     time.Duration
	Step         time.Duration
	Index        string
	Start        string
	By           string
	End          string
	Condition    string
	Target       string
	Value        string
	Burn         string
	On           bool
}

// loadScenario reads the scenario file.
func loadScenario(path string) (*scenario, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", missionseq.ErrConfig, path, err)
	}
	var s scenario
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %s: %s", missionseq.ErrConfig, path, err)
	}
	if s.Mission.Name == "" {
		s.Mission.Name = strings.TrimSuffix(path, ".toml")
	}
	if s.Propagator.Origin == "" {
		s.Propagator.Origin = bodies.Earth.Name
	}
	return &s, nil
}

// mission is a scenario ready to run.
type mission struct {
	store    *object.Store
	seq      *command.Sequence
	locators []*event.Locator
	table    *event.Table
	eph      ephem.Provider
}

// build creates the participants, the locators and the command sequence of the scenario.
func (s *scenario) build(cfg missionseq.Config, eph ephem.Provider) (*mission, error) {
	m := &mission{table: event.NewTable(), eph: eph, seq: command.NewSequence()}
	origin, err := bodies.FromString(s.Propagator.Origin)
	if err != nil {
		return nil, fmt.Errorf("%w: propagator origin: %s", missionseq.ErrConfig, err)
	}

	scs := make([]*object.Spacecraft, 0, len(s.Spacecraft))
	for _, sec := range s.Spacecraft {
		sc, err := sec.spacecraft()
		if err != nil {
			return nil, err
		}
		scs = append(scs, sc)
	}
	if m.store, err = object.NewStore(scs...); err != nil {
		return nil, err
	}

	for _, sec := range s.Events {
		loc, err := sec.locator(cfg.Events, m.table, origin, eph)
		if err != nil {
			return nil, err
		}
		m.locators = append(m.locators, loc)
	}

	for i, sec := range s.Commands {
		cmd, err := s.command(sec, cfg, origin, eph)
		if err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, sec.Type, err)
		}
		if _, err := m.seq.AppendCommand(cmd); err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, sec.Type, err)
		}
	}
	return m, m.seq.Validate()
}

// parseEpoch reads an epoch as a Julian date or an RFC 3339 time.
func parseEpoch(s string) (time.Time, error) {
	if jde, err := strconv.ParseFloat(s, 64); err == nil {
		return julian.JDToTime(jde), nil
	}
	dt, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: epoch '%s' is neither a Julian date nor an RFC 3339 time", missionseq.ErrConfig, s)
	}
	return dt.UTC(), nil
}

func (sec spacecraftSection) spacecraft() (*object.Spacecraft, error) {
	epoch, err := parseEpoch(sec.Epoch)
	if err != nil {
		return nil, fmt.Errorf("spacecraft %s: %w", sec.Name, err)
	}
	var sc *object.Spacecraft
	if len(sec.TLE) > 0 {
		if len(sec.TLE) != 2 {
			return nil, fmt.Errorf("%w: spacecraft %s needs two TLE lines", missionseq.ErrConfig, sec.Name)
		}
		sc, err = object.SpacecraftFromTLE(sec.Name, sec.TLE[0], sec.TLE[1], epoch, sec.Dry, sec.Fuel)
	} else {
		body, berr := bodies.FromString(sec.Body)
		if berr != nil {
			return nil, fmt.Errorf("%w: spacecraft %s: %s", missionseq.ErrConfig, sec.Name, berr)
		}
		state := sec.State
		if len(sec.Orbit) > 0 {
			if len(sec.Orbit) != 6 {
				return nil, fmt.Errorf("%w: spacecraft %s needs six orbital elements", missionseq.ErrConfig, sec.Name)
			}
			o := object.Orbit{SMA: sec.Orbit[0], ECC: sec.Orbit[1], INC: sec.Orbit[2], RAAN: sec.Orbit[3], AOP: sec.Orbit[4], TA: sec.Orbit[5]}
			if state, err = o.State(body.GM()); err != nil {
				return nil, fmt.Errorf("spacecraft %s: %w", sec.Name, err)
			}
		}
		sc, err = object.NewSpacecraft(sec.Name, epoch, state, body, sec.Dry, sec.Fuel)
	}
	if err != nil {
		return nil, err
	}
	if sec.Cd > 0 {
		sc.Cd = sec.Cd
	}
	if sec.Area > 0 {
		sc.Area = sec.Area
	}
	return sc, nil
}

func (sec eventSection) locator(cfg missionseq.EventConfig, table *event.Table, origin bodies.CelestialObject, eph ephem.Provider) (*event.Locator, error) {
	body := origin
	if sec.Body != "" {
		var err error
		if body, err = bodies.FromString(sec.Body); err != nil {
			return nil, fmt.Errorf("%w: locator %s: %s", missionseq.ErrConfig, sec.Name, err)
		}
	}
	loc, err := event.NewLocator(sec.Name, sec.Targets, cfg, table)
	if err != nil {
		return nil, err
	}
	for _, name := range sec.Functions {
		kind, arg, _ := strings.Cut(strings.ToLower(name), ":")
		var fn event.Function
		switch kind {
		case "apsis":
			fn = &event.Apsis{Body: body}
		case "altitude":
			threshold, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: locator %s: altitude threshold '%s'", missionseq.ErrConfig, sec.Name, arg)
			}
			fn = &event.Altitude{Body: body, Threshold: threshold}
		case "umbra", "penumbra":
			shadow := event.Umbra
			if kind == "penumbra" {
				shadow = event.Penumbra
			}
			if fn, err = event.NewShadow(shadow, body, eph); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: locator %s: unknown event function '%s'", missionseq.ErrConfig, sec.Name, name)
		}
		if err := loc.AddFunction(fn); err != nil {
			return nil, err
		}
	}
	loc.Active = !sec.Inactive
	return loc, nil
}

// forceModel returns the force model about the origin: its gravity, the configured perturbations
// and every burn, inactive until a BeginFiniteBurn.
func (s *scenario) forceModel(cfg missionseq.Config, origin bodies.CelestialObject, eph ephem.Provider) (*dynamics.ForceModel, error) {
	fm := dynamics.NewForceModel(cfg.Propagation.Norm, cfg.Propagation.RelativeThreshold)
	primary, err := dynamics.NewPointMassGravity(origin, origin, eph)
	if err != nil {
		return nil, err
	}
	if err := fm.AddForce(primary); err != nil {
		return nil, err
	}
	for _, name := range s.Forces.Bodies {
		body, err := bodies.FromString(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", missionseq.ErrConfig, err)
		}
		third, err := dynamics.NewPointMassGravity(body, origin, eph)
		if err != nil {
			return nil, err
		}
		if err := fm.AddForce(third); err != nil {
			return nil, err
		}
	}
	if s.Forces.Jn >= 2 {
		zonal, err := dynamics.NewZonalHarmonics(origin, s.Forces.Jn)
		if err != nil {
			return nil, err
		}
		if err := fm.AddForce(zonal); err != nil {
			return nil, err
		}
	}
	if s.Forces.Drag {
		if !origin.Equals(bodies.Earth) {
			return nil, fmt.Errorf("%w: drag is only modeled about the Earth", missionseq.ErrConfig)
		}
		if err := fm.AddForce(dynamics.NewEarthDrag()); err != nil {
			return nil, err
		}
	}
	for _, sec := range s.Burns {
		thruster, err := dynamics.GenericEP(sec.Thrust, sec.Isp)
		if sec.Thruster != "" {
			thruster, _, err = dynamics.CatalogThruster(sec.Thruster)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: burn %s: %s", missionseq.ErrConfig, sec.Name, err)
		}
		dir := dynamics.Tangential
		if sec.Direction != "" {
			if dir, err = dynamics.DirectionFromString(strings.ToLower(sec.Direction)); err != nil {
				return nil, fmt.Errorf("%w: burn %s: %s", missionseq.ErrConfig, sec.Name, err)
			}
		}
		burn, err := dynamics.NewFiniteBurn(sec.Name, thruster, dir, sec.Target)
		if err != nil {
			return nil, fmt.Errorf("%w: burn %s: %s", missionseq.ErrConfig, sec.Name, err)
		}
		if err := fm.AddForce(burn); err != nil {
			return nil, err
		}
	}
	return fm, nil
}

func (s *scenario) command(sec commandSection, cfg missionseq.Config, origin bodies.CelestialObject, eph ephem.Provider) (command.Command, error) {
	switch strings.ToLower(sec.Type) {
	case "propagate":
		prop, err := integrator.New(s.Propagator.Name, cfg.Propagation)
		if err != nil {
			return nil, err
		}
		model, err := s.forceModel(cfg, origin, eph)
		if err != nil {
			return nil, err
		}
		p := command.NewPropagate(sec.Duration, command.Setup{
			Propagator:   prop,
			Model:        model,
			Participants: sec.Participants,
			Origin:       origin.Name,
		})
		p.StepSize = s.Propagator.Step
		if sec.Step > 0 {
			p.StepSize = sec.Step
		}
		return p, nil
	case "for":
		var bounds [3]command.Expression
		for i, operand := range []string{sec.Start, sec.By, sec.End} {
			expr, err := parseExpression(operand)
			if err != nil {
				return nil, err
			}
			bounds[i] = expr
		}
		return command.NewFor(sec.Index, bounds[0], bounds[1], bounds[2]), nil
	case "endfor":
		return command.EndFor{}, nil
	case "while":
		cond, err := parseCondition(sec.Condition)
		if err != nil {
			return nil, err
		}
		return command.NewWhile(cond), nil
	case "endwhile":
		return command.EndWhile{}, nil
	case "if":
		cond, err := parseCondition(sec.Condition)
		if err != nil {
			return nil, err
		}
		return command.NewIf(cond), nil
	case "else":
		return command.Else{}, nil
	case "endif":
		return command.EndIf{}, nil
	case "assignment":
		value, err := parseExpression(sec.Value)
		if err != nil {
			return nil, err
		}
		return command.NewAssignment(sec.Target, value), nil
	case "beginfiniteburn":
		return &command.BeginBurn{Burn: sec.Burn}, nil
	case "endfiniteburn":
		return &command.EndBurn{Burn: sec.Burn}, nil
	case "toggle":
		return &command.Toggle{Participants: sec.Participants, On: sec.On}, nil
	case "stop":
		return command.Stop{}, nil
	case "noop":
		return command.NoOp{}, nil
	}
	return nil, fmt.Errorf("%w: unknown command type '%s'", missionseq.ErrConfig, sec.Type)
}

// parseExpression reads an operand, or two operands around one of + - * / ^.
func parseExpression(s string) (command.Expression, error) {
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		return command.ParseOperand(fields[0])
	case 3:
		if len(fields[1]) != 1 || !strings.Contains("+-*/^", fields[1]) {
			break
		}
		left, err := command.ParseOperand(fields[0])
		if err != nil {
			return nil, err
		}
		right, err := command.ParseOperand(fields[2])
		if err != nil {
			return nil, err
		}
		return command.BinaryOp{Op: fields[1][0], Left: left, Right: right}, nil
	}
	return nil, fmt.Errorf("%w: malformed expression '%s'", missionseq.ErrConfig, s)
}

// parseCondition reads comparisons joined by & or |, e.g. "sc.RMAG > 7000 & n < 3".
func parseCondition(s string) (*command.Condition, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 || (len(fields)-3)%4 != 0 {
		return nil, fmt.Errorf("%w: malformed condition '%s'", missionseq.ErrConfig, s)
	}
	operands := func(i int) (command.Expression, command.Expression, error) {
		left, err := command.ParseOperand(fields[i])
		if err != nil {
			return nil, nil, err
		}
		right, err := command.ParseOperand(fields[i+2])
		return left, right, err
	}
	left, right, err := operands(0)
	if err != nil {
		return nil, err
	}
	cond, err := command.NewCondition(left, fields[1], right)
	if err != nil {
		return nil, err
	}
	for i := 3; i < len(fields); i += 4 {
		if len(fields[i]) != 1 {
			return nil, fmt.Errorf("%w: unknown logical operator '%s'", missionseq.ErrConfig, fields[i])
		}
		left, right, err := operands(i + 1)
		if err != nil {
			return nil, err
		}
		if err := cond.Join(fields[i][0], left, fields[i+2], right); err != nil {
			return nil, err
		}
	}
	return cond, nil
}
