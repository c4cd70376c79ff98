package directory

// DeviceListener receives device inventory change notifications.
type DeviceListener interface {
	OnDeviceChanged(d Device)
	OnDeviceDeleted(d Device)
	OnDirectoryReset()
}

// DeviceDirectory enumerates the devices on the network.
type DeviceDirectory interface {
	// Devices returns a snapshot of the known devices. When refresh is
	// true the directory may re-query its backing source first.
	Devices(refresh bool) []Device
	AddDeviceListener(l DeviceListener)
}

// UserDirectory resolves household users.
type UserDirectory interface {
	UserByID(id string) (User, bool)
	// UsersByProfile returns the users assigned to a profile.
	UsersByProfile(profileID string) []User
}

// ProfileListener receives profile configuration change notifications.
type ProfileListener interface {
	OnProfileChanged(p Profile)
}

// ProfileDirectory resolves access profiles by id. Bonus time is the
// one piece of profile state this core is allowed to write back.
type ProfileDirectory interface {
	ProfileByID(id string) (Profile, bool)
	SaveBonusTime(profileID string, bonus *BonusTime) error
	AddProfileListener(l ProfileListener)
}
