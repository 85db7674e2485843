package svf

import "github.com/alecthomas/participle/v2/lexer"

// File is a parsed SVF file.
type File struct {
	Commands []*Command `parser:"@@*"`
}

// Command is one semicolon-terminated SVF statement. Exactly one of the
// alternatives is set; FREQUENCY without a value leaves FrequencyHz nil.
type Command struct {
	Pos lexer.Position

	Frequency   bool        `parser:"(   @'FREQUENCY'"`
	FrequencyHz *float64    `parser:"    ( @Number 'HZ' )?"`
	TRST        *string     `parser:"  | 'TRST' @Ident"`
	State       *StateCmd   `parser:"  | 'STATE' @@"`
	EndIR       *string     `parser:"  | 'ENDIR' @Ident"`
	EndDR       *string     `parser:"  | 'ENDDR' @Ident"`
	RunTest     *RunTestCmd `parser:"  | 'RUNTEST' @@"`
	PIOMap      *string     `parser:"  | 'PIOMAP' @(Group | Hex)"`
	PIO         *string     `parser:"  | 'PIO' @(Group | Hex)"`
	Scan        *ScanCmd    `parser:"  | @@ ) ';'"`
}

// StateCmd is STATE [path...] stable_state.
type StateCmd struct {
	States []string `parser:"@Ident+"`
}

// ScanCmd covers HIR, TIR, HDR, TDR, SIR and SDR.
type ScanCmd struct {
	Kind   string       `parser:"@( 'HIR' | 'TIR' | 'HDR' | 'TDR' | 'SIR' | 'SDR' )"`
	Length int          `parser:"@Number"`
	Fields []*ScanField `parser:"@@*"`
}

// ScanField is one of TDI, TDO, MASK or SMASK with its hex value.
type ScanField struct {
	Name  string `parser:"@( 'TDI' | 'TDO' | 'MASK' | 'SMASK' )"`
	Value string `parser:"@Hex"`
}

// RunTestCmd is
//
//	RUNTEST [run_state] run_count run_clk [min_time SEC [MAXIMUM max_time SEC]] [ENDSTATE end_state]
//	RUNTEST [run_state] min_time SEC [MAXIMUM max_time SEC] [ENDSTATE end_state]
type RunTestCmd struct {
	RunState *string  `parser:"@Ident?"`
	Count    float64  `parser:"@Number"`
	Unit     string   `parser:"@( 'TCK' | 'SCK' | 'SEC' )"`
	MinTime  *float64 `parser:"( @Number 'SEC' )?"`
	MaxTime  *float64 `parser:"( 'MAXIMUM' @Number 'SEC' )?"`
	EndState *string  `parser:"( 'ENDSTATE' @Ident )?"`
}
