package entity

var (
	themes    = []string{"light", "dark", "system"}
	languages = []string{"sr", "en"}
)

// Settings holds per-user preferences. There is at most one live row per user.
type Settings struct {
	Theme                     Optional[string]
	Language                  Optional[string]
	NotificationsEnabled      Optional[bool]
	WarrantyExpiryThreshold   Optional[int64]
	WarrantyCriticalThreshold Optional[int64]
	QuietHoursStart           Optional[string]
	QuietHoursEnd             Optional[string]
	BiometricLock             Optional[bool]
}

func (s *Settings) Fields() []Field {
	return []Field{
		{Name: "theme", Column: "theme", Type: TypeEnum, Enum: themes, Default: "system", Slot: &s.Theme},
		{Name: "language", Column: "language", Type: TypeEnum, Enum: languages, Default: "sr", Slot: &s.Language},
		{Name: "notificationsEnabled", Column: "notifications_enabled", Type: TypeBool, Default: true, Slot: &s.NotificationsEnabled},
		{Name: "warrantyExpiryThreshold", Column: "warranty_expiry_threshold", Type: TypeInteger, NonNegative: true, Default: int64(30), Slot: &s.WarrantyExpiryThreshold},
		{Name: "warrantyCriticalThreshold", Column: "warranty_critical_threshold", Type: TypeInteger, NonNegative: true, Default: int64(7), Slot: &s.WarrantyCriticalThreshold},
		{Name: "quietHoursStart", Column: "quiet_hours_start", Type: TypeClock, Slot: &s.QuietHoursStart},
		{Name: "quietHoursEnd", Column: "quiet_hours_end", Type: TypeClock, Slot: &s.QuietHoursEnd},
		{Name: "biometricLock", Column: "biometric_lock", Type: TypeBool, Default: false, Slot: &s.BiometricLock},
	}
}
