package domain

// ERA5-Land variables are requested from the provider by a long
// human-readable identifier but stored in the downloaded NetCDF under a
// short internal code. The tables below resolve both directions and are
// built once at package init; they are never mutated afterwards.

var variableShortNames = map[string]string{
	"2m_temperature":                    "t2m",
	"2m_dewpoint_temperature":           "d2m",
	"skin_temperature":                  "skt",
	"soil_temperature_level_1":          "stl1",
	"soil_temperature_level_2":          "stl2",
	"soil_temperature_level_3":          "stl3",
	"soil_temperature_level_4":          "stl4",
	"total_precipitation":               "tp",
	"total_evaporation":                 "e",
	"potential_evaporation":             "pev",
	"snowfall":                          "sf",
	"snow_depth":                        "sd",
	"snow_albedo":                       "asn",
	"snowmelt":                          "smlt",
	"snow_melt":                         "smlt",
	"volumetric_soil_water_layer_1":     "swvl1",
	"volumetric_soil_water_layer_2":     "swvl2",
	"volumetric_soil_water_layer_3":     "swvl3",
	"volumetric_soil_water_layer_4":     "swvl4",
	"surface_solar_radiation_downwards": "ssrd",
	"surface_net_solar_radiation":       "ssr",
	"surface_thermal_radiation_downwards": "strd",
	"surface_net_thermal_radiation":       "str",
	"10m_u_component_of_wind":             "u10",
	"10m_v_component_of_wind":             "v10",
	"surface_pressure":                    "sp",
	"leaf_area_index_high_vegetation":     "lai_hv",
	"leaf_area_index_low_vegetation":      "lai_lv",
	"runoff":                              "ro",
	"surface_runoff":                      "sro",
	"sub_surface_runoff":                  "ssro",
}

var variableLongNames = func() map[string]string {
	m := make(map[string]string, len(variableShortNames))
	for long, short := range variableShortNames {
		// "snow_melt" is an accepted alias of "snowmelt"; keep the
		// canonical long name for the reverse direction.
		if short == "smlt" && long == "snow_melt" {
			continue
		}
		m[short] = long
	}
	return m
}()

// ShortName returns the dataset-side code for a provider long name.
// Unknown names are returned unchanged, matching provider behavior for
// variables missing from the table.
func ShortName(long string) string {
	if short, ok := variableShortNames[long]; ok {
		return short
	}
	return long
}

// LongName returns the provider long name for a dataset-side code, or the
// code itself when no mapping exists.
func LongName(short string) string {
	if long, ok := variableLongNames[short]; ok {
		return long
	}
	return short
}

// KnownVariables lists every mapped (long, short) pair, for catalogs.
func KnownVariables() map[string]string {
	out := make(map[string]string, len(variableShortNames))
	for long, short := range variableShortNames {
		out[long] = short
	}
	return out
}
