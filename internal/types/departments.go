package types

import "slices"

var departments = []string{
	"AFRI", "AMST", "ANTH", "APMA", "ARAB", "ARCH", "ARTS", "ASYR", "BHDS",
	"BIOL", "CHEM", "CHIN", "CLAS", "CLPS", "COLT", "CSCI", "DATA", "EAST",
	"ECON", "EDUC", "EEPS", "EGYT", "EINT", "EMOW", "ENGL", "ENGN", "ENVS",
	"ETHN", "FREN", "GNSS", "GPHP", "GREK", "GRMN", "HCL", "HEBR", "HIAA",
	"HISP", "HMAN", "HNDI", "IAPA", "ITAL", "JAPN", "JUDS", "KREA", "LACA",
	"LANG", "LATN", "LING", "LITR", "MATH", "MCM", "MDVL", "MED", "MES",
	"MGRK", "MPA", "MUSC", "NEUR", "PHIL", "PHP", "PHYS", "POLS", "PRSN",
	"RELS", "RUSS", "SANS", "SAST", "SIGN", "SLAV", "SOC", "STS", "TAPS",
	"TKSH", "UNIV", "URBN", "VISA", "YORU",
}

// Departments returns the department codes offered for selection, sorted.
func Departments() []string {
	return slices.Clone(departments)
}

// IsDepartment reports whether code is a known department.
func IsDepartment(code string) bool {
	_, found := slices.BinarySearch(departments, code)
	return found
}
