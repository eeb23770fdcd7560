package baseline

import "pumpguard/internal/model"

const (
	soundNom = 75.00071873
	oilNom   = 54.9975205
	brgNom   = 64.99322208
	dispNom  = 40.00441994
	accNom   = 0.300002532
	velNom   = 3.49898588
	toutNom  = 55.00039175
	tinNom   = 45.0000938
	pdNom    = 6.500036003
	psNom    = 2.500142497
	qNom     = 89.99412798
	pNom     = 20.0002695
	vNom     = 400.0013129
	iNom     = 39.99980326
)

func Default() *Config {
	return &Config{
		Stats: map[model.SensorKey]Stat{
			model.Accelerometer:     {Mean: accNom, Std: 0.049997219},
			model.VibrationVelocity: {Mean: velNom, Std: 0.400706654},
			model.ShaftDisplacement: {Mean: dispNom, Std: 4.997512061},
			model.BearingTemp:       {Mean: brgNom, Std: 1.499359982},
			model.OilTemp:           {Mean: oilNom, Std: 1.203530038},
			model.CasingTemp:        {Mean: 59.99964348, Std: 1.001719642},
			model.InletFluidTemp:    {Mean: tinNom, Std: 0.800563365},
			model.OutletFluidTemp:   {Mean: toutNom, Std: 0.899973503},
			model.InletPressure:     {Mean: psNom, Std: 0.050020314},
			model.OutletPressure:    {Mean: pdNom, Std: 0.080030109},
			model.FlowRate:          {Mean: qNom, Std: 1.997868975},
			model.MotorCurrent:      {Mean: iNom, Std: 0.799864828},
			model.SupplyVoltage:     {Mean: vNom, Std: 2.994188307},
			model.PowerConsumption:  {Mean: pNom, Std: 0.499433704},
			model.SoundIntensity:    {Mean: soundNom, Std: 1.999261905},
		},
		Subsystems: Subsystems{
			Mechanical: map[model.SensorKey]float64{
				model.SoundIntensity:    soundNom,
				model.OilTemp:           oilNom,
				model.BearingTemp:       brgNom,
				model.ShaftDisplacement: dispNom,
				model.Accelerometer:     accNom,
				model.VibrationVelocity: velNom,
			},
			Hydraulic: map[model.SensorKey]float64{
				model.OutletFluidTemp: toutNom,
				model.InletFluidTemp:  tinNom,
				model.OutletPressure:  pdNom,
				model.InletPressure:   psNom,
				model.FlowRate:        qNom,
			},
			Electrical: map[model.SensorKey]float64{
				model.PowerConsumption: pNom,
				model.SupplyVoltage:    vNom,
				model.MotorCurrent:     iNom,
			},
			Weights: Weights{Mechanical: 0.4, Hydraulic: 0.3, Electrical: 0.3},
		},
		Limits: map[model.SensorKey]LimitRule{
			model.OilTemp:           {WarnRatio: 0.85, Limit: oilNom, Label: "High Oil Temperature"},
			model.BearingTemp:       {WarnRatio: 0.85, Limit: brgNom, Label: "High Bearing Temperature"},
			model.ShaftDisplacement: {WarnRatio: 0.85, Limit: dispNom, Label: "High Shaft Displacement"},
			model.Accelerometer:     {WarnRatio: 0.85, Limit: accNom, Label: "High Acceleration"},
			model.VibrationVelocity: {WarnRatio: 0.85, Limit: velNom, Label: "High Vibration Velocity"},
		},
		Deviations: map[model.SensorKey]DeviationRule{
			model.SoundIntensity:   {WarnDev: 0.15, FailDev: 0.30, Nominal: soundNom, Label: "High Sound Intensity"},
			model.FlowRate:         {WarnDev: 0.10, FailDev: 0.20, Nominal: qNom, Label: "Abnormal Flow Rate"},
			model.InletPressure:    {WarnDev: 0.10, FailDev: 0.20, Nominal: psNom, Label: "Abnormal Suction Pressure"},
			model.OutletPressure:   {WarnDev: 0.10, FailDev: 0.20, Nominal: pdNom, Label: "Abnormal Discharge Pressure"},
			model.InletFluidTemp:   {WarnDev: 0.10, FailDev: 0.20, Nominal: tinNom, Label: "Abnormal Inlet Fluid Temp"},
			model.OutletFluidTemp:  {WarnDev: 0.10, FailDev: 0.20, Nominal: toutNom, Label: "Abnormal Outlet Fluid Temp"},
			model.MotorCurrent:     {WarnDev: 0.10, FailDev: 0.20, Nominal: iNom, Label: "Abnormal Motor Current"},
			model.SupplyVoltage:    {WarnDev: 0.06, FailDev: 0.10, Nominal: vNom, Label: "Abnormal Supply Voltage"},
			model.PowerConsumption: {WarnDev: 0.10, FailDev: 0.20, Nominal: pNom, Label: "Abnormal Power Consumption"},
		},
		Rules: RuleParams{
			ZWarn:       2.0,
			ZCrit:       3.0,
			Persistence: 1,
			MaxTriggers: 6,
		},
		RUL: RULParams{
			WindowHours:      6,
			MaxSamples:       240,
			Alpha:            0.25,
			MinPoints:        8,
			ActionBufferDays: 14,
			MinDays:          1,
			MaxDays:          150,
			AccelerationGain: 0.25,
			MinAcceleration:  0.5,
			MaxAcceleration:  2.0,
			CriticalWeight:   2.0,
			CriticalSensors: []model.SensorKey{
				model.BearingTemp,
				model.OilTemp,
				model.VibrationVelocity,
				model.MotorCurrent,
				model.PowerConsumption,
			},
			CandidateSensors: []model.SensorKey{
				model.BearingTemp,
				model.OilTemp,
				model.VibrationVelocity,
				model.VibrationVelocityAlias,
				model.ShaftDisplacement,
				model.Accelerometer,
				model.MotorCurrent,
				model.PowerConsumption,
				model.SupplyVoltage,
				model.FlowRate,
				model.InletPressure,
				model.OutletPressure,
			},
		},
	}
}
